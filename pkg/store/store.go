package store

import (
	"context"

	"github.com/elattma/mimo-core-sub000/pkg/model"
)

// Candidate is one block returned by a store query, annotated with the
// provenance the response surface needs.
type Candidate struct {
	Block      *model.Block
	PageID     string
	PageType   model.PageType
	Connection string
}

// NameMention binds a name to the pages that mention it, for the mentions
// edge written during ingestion.
type NameMention struct {
	Name    model.Name
	PageIDs []string
}

// Filter is the structured graph query: independent optional clauses,
// combined conjunctively. Library is mandatory; every query is scoped to
// one tenant.
type Filter struct {
	Library string

	PageIDs     []string
	PageTypes   []model.PageType
	Connections []string
	PageStart   int64
	PageEnd     int64

	BlockIDs    []string
	BlockLabels []model.BlockLabel
	BlockStart  int64
	BlockEnd    int64

	// Content matches serialized block content by substring.
	Content string

	// NameIDs/NameValues constrain results to pages mentioning the given
	// entities. MatchNameContent additionally requires the resolved entity
	// ids to appear inside serialized block content (the two-phase match).
	NameIDs          []string
	NameValues       []string
	MatchNameContent bool

	// SummaryOnly returns one page-summary candidate per matching page
	// instead of the pages' blocks.
	SummaryOnly bool

	Limit  int
	Offset int
}

// GraphStore persists pages, blocks, and names as a property graph and
// executes filtered traversal queries. All writes are upserts keyed by
// (library, id).
type GraphStore interface {
	WriteBlocks(ctx context.Context, library string, blocks []*model.Block) error
	WritePages(ctx context.Context, library string, pages []*model.Page) error
	WriteNames(ctx context.Context, library string, mentions []NameMention) error
	Query(ctx context.Context, f Filter) ([]Candidate, error)

	// Cleanup removes blocks no longer referenced by any page and returns
	// their ids so vector rows can be deleted alongside.
	Cleanup(ctx context.Context, library string) ([]string, error)

	// DeleteConnection removes every page of a connection, then runs the
	// orphan cleanup. Returns all removed page and block ids.
	DeleteConnection(ctx context.Context, library string, connection string) ([]string, error)
}

// Match is one ranked hit from a vector query.
type Match struct {
	ID    string
	Score float32
}

// RowFilter restricts a vector query. All fields are optional; Library is
// enforced by the adapter.
type RowFilter struct {
	Kind        model.RowKind
	StartDay    string
	EndDay      string
	PageTypes   []model.PageType
	Connections []string
	BlockLabels []model.BlockLabel
	IDs         []string
}

// UpsertResult reports how much of a batched upsert landed, so a caller
// can distinguish partial from total failure.
type UpsertResult struct {
	RowsWritten    int
	BatchesWritten int
	BatchesFailed  int
}

// Partial reports whether some but not all batches were written.
func (r UpsertResult) Partial() bool {
	return r.BatchesFailed > 0 && r.BatchesWritten > 0
}

// VectorIndex persists embeddings with metadata and executes filtered
// approximate nearest-neighbor queries.
type VectorIndex interface {
	Upsert(ctx context.Context, rows []model.Row) (UpsertResult, error)
	Delete(ctx context.Context, library string, ids []string) error

	// DeleteByConnection removes every row of a connection by payload
	// filter, without needing the row ids. Safe to repeat.
	DeleteByConnection(ctx context.Context, library string, connection string) error

	Query(ctx context.Context, library string, embedding []float32, f RowFilter, k int) ([]Match, error)
	Fetch(ctx context.Context, library string, ids []string) ([]model.Row, error)
}
