package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/query"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

type fakeEmbedClient struct {
	calls int
}

func (f *fakeEmbedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	f.calls++
	return []float32{0.5, 0.5}, nil
}

func (f *fakeEmbedClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEmbedClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeEmbedClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeEmbedClient) ResetMetrics()               {}
func (f *fakeEmbedClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type graphCall struct {
	filter store.Filter
}

type fakeGraphStore struct {
	calls      []graphCall
	candidates []store.Candidate
}

func (f *fakeGraphStore) WriteBlocks(ctx context.Context, library string, blocks []*model.Block) error {
	return nil
}
func (f *fakeGraphStore) WritePages(ctx context.Context, library string, pages []*model.Page) error {
	return nil
}
func (f *fakeGraphStore) WriteNames(ctx context.Context, library string, mentions []store.NameMention) error {
	return nil
}

func (f *fakeGraphStore) Query(ctx context.Context, filter store.Filter) ([]store.Candidate, error) {
	f.calls = append(f.calls, graphCall{filter: filter})
	return f.candidates, nil
}

func (f *fakeGraphStore) Cleanup(ctx context.Context, library string) ([]string, error) {
	return nil, nil
}

func (f *fakeGraphStore) DeleteConnection(ctx context.Context, library, connection string) ([]string, error) {
	return nil, nil
}

type vectorCall struct {
	filter store.RowFilter
	k      int
}

type fakeVectorIndex struct {
	calls   []vectorCall
	matches [][]store.Match
}

func (f *fakeVectorIndex) Upsert(ctx context.Context, rows []model.Row) (store.UpsertResult, error) {
	return store.UpsertResult{}, nil
}

func (f *fakeVectorIndex) Delete(ctx context.Context, library string, ids []string) error {
	return nil
}

func (f *fakeVectorIndex) DeleteByConnection(ctx context.Context, library, connection string) error {
	return nil
}

func (f *fakeVectorIndex) Query(ctx context.Context, library string, embedding []float32, filter store.RowFilter, k int) ([]store.Match, error) {
	f.calls = append(f.calls, vectorCall{filter: filter, k: k})
	if len(f.matches) == 0 {
		return nil, nil
	}
	next := f.matches[0]
	f.matches = f.matches[1:]
	return next, nil
}

func (f *fakeVectorIndex) Fetch(ctx context.Context, library string, ids []string) ([]model.Row, error) {
	return nil, nil
}

func candidate(blockID string) store.Candidate {
	return store.Candidate{
		Block: &model.Block{
			ID:          blockID,
			Label:       model.LabelBody,
			LastUpdated: 1700000000,
			Chunks:      []model.Chunk{{Text: "content of " + blockID}},
		},
		PageID:     "page-1",
		PageType:   model.PageTypeEmailThread,
		Connection: "conn-1",
	}
}

func newTestEngine(graph *fakeGraphStore, vector *fakeVectorIndex, client *fakeEmbedClient) *Engine {
	return NewEngine(NewEngineParams{AI: client, Graph: graph, Vector: vector, Library: "lib-1"})
}

func TestFetchExactUsesGraphOnly(t *testing.T) {
	graph := &fakeGraphStore{candidates: []store.Candidate{candidate("b1")}}
	vector := &fakeVectorIndex{}
	client := &fakeEmbedClient{}
	e := newTestEngine(graph, vector, client)

	q := &query.StructuredQuery{
		SearchMethod: query.SearchExact,
		Participants: []query.Participant{{Name: "Jane", Role: model.RoleAuthor}},
	}
	results, err := e.Fetch(context.Background(), "emails from Jane", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Block.ID != "b1" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(vector.calls) != 0 || client.calls != 0 {
		t.Fatal("exact search must not touch the vector index or the embedder")
	}
	if len(graph.calls) != 1 || graph.calls[0].filter.NameValues[0] != "Jane" {
		t.Fatalf("expected a participant-constrained graph query: %+v", graph.calls)
	}
}

func TestFetchExactParticipantsMatchNameContent(t *testing.T) {
	graph := &fakeGraphStore{}
	e := newTestEngine(graph, &fakeVectorIndex{}, &fakeEmbedClient{})

	q := &query.StructuredQuery{
		SearchMethod: query.SearchExact,
		Participants: []query.Participant{{Name: "Jane", Role: model.RoleAuthor}},
	}
	if _, err := e.Fetch(context.Background(), "emails from Jane", q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.calls) != 1 || !graph.calls[0].filter.MatchNameContent {
		t.Fatalf("block-level participant search must match entity ids in content: %+v", graph.calls)
	}

	graph.calls = nil
	q.Granularity = query.GranularityPage
	if _, err := e.Fetch(context.Background(), "emails from Jane", q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.calls) != 1 || graph.calls[0].filter.MatchNameContent {
		t.Fatalf("page-level search must not constrain block content: %+v", graph.calls)
	}
}

func TestFetchRelevantResolvesThroughGraph(t *testing.T) {
	graph := &fakeGraphStore{candidates: []store.Candidate{candidate("b2"), candidate("b1")}}
	vector := &fakeVectorIndex{matches: [][]store.Match{{
		{ID: "b1", Score: 0.9},
		{ID: "b2", Score: 0.7},
	}}}
	client := &fakeEmbedClient{}
	e := newTestEngine(graph, vector, client)

	q := &query.StructuredQuery{SearchMethod: query.SearchRelevant, Limit: 5}
	results, err := e.Fetch(context.Background(), "renewal terms", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected one request embedding, got %d", client.calls)
	}
	if len(vector.calls) != 1 || vector.calls[0].k != 5 {
		t.Fatalf("expected a top-5 vector query: %+v", vector.calls)
	}
	if len(results) != 2 || results[0].Block.ID != "b1" || results[1].Block.ID != "b2" {
		t.Fatalf("results must preserve vector ranking: %+v", results)
	}
	if results[0].Score != 0.9 {
		t.Fatalf("expected similarity carried through, got %f", results[0].Score)
	}
	if len(graph.calls) != 1 || len(graph.calls[0].filter.BlockIDs) != 2 {
		t.Fatalf("expected one id-resolution graph query: %+v", graph.calls)
	}
}

func TestFetchRelevantSkipsDanglingMatches(t *testing.T) {
	graph := &fakeGraphStore{candidates: []store.Candidate{candidate("b1")}}
	vector := &fakeVectorIndex{matches: [][]store.Match{{
		{ID: "b1", Score: 0.9},
		{ID: "gone", Score: 0.8},
	}}}
	e := newTestEngine(graph, vector, &fakeEmbedClient{})

	q := &query.StructuredQuery{SearchMethod: query.SearchRelevant, PageTypes: []model.PageType{model.PageTypeEmailThread}}
	results, err := e.Fetch(context.Background(), "renewal", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Block.ID != "b1" {
		t.Fatalf("dangling vector match must be skipped: %+v", results)
	}
}

func TestFetchFallsBackToSummaries(t *testing.T) {
	graph := &fakeGraphStore{candidates: []store.Candidate{candidate("page-1")}}
	vector := &fakeVectorIndex{matches: [][]store.Match{
		{},
		{{ID: "page-1", Score: 0.6}},
	}}
	e := newTestEngine(graph, vector, &fakeEmbedClient{})

	q := &query.StructuredQuery{SearchMethod: query.SearchRelevant}
	results, err := e.Fetch(context.Background(), "what is going on", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector.calls) != 2 {
		t.Fatalf("expected the fallback vector query, got %d calls", len(vector.calls))
	}
	if vector.calls[0].filter.Kind != model.RowKindBlock {
		t.Fatalf("first query must target block rows: %+v", vector.calls[0])
	}
	if vector.calls[1].filter.Kind != model.RowKindPageSummary {
		t.Fatalf("fallback must target page summaries: %+v", vector.calls[1])
	}
	if len(results) != 1 {
		t.Fatalf("fallback should produce candidates: %+v", results)
	}
}

func TestFetchNoFallbackWithFilters(t *testing.T) {
	graph := &fakeGraphStore{}
	vector := &fakeVectorIndex{}
	e := newTestEngine(graph, vector, &fakeEmbedClient{})

	q := &query.StructuredQuery{
		SearchMethod: query.SearchRelevant,
		PageTypes:    []model.PageType{model.PageTypeCRMAccount},
	}
	results, err := e.Fetch(context.Background(), "deals", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results: %+v", results)
	}
	if len(vector.calls) != 1 {
		t.Fatalf("a filtered query must not fall back, got %d calls", len(vector.calls))
	}
}

func TestFetchParticipantsWidenAndThreshold(t *testing.T) {
	graph := &fakeGraphStore{candidates: []store.Candidate{candidate("b1")}}
	vector := &fakeVectorIndex{matches: [][]store.Match{{
		{ID: "b1", Score: 0.8},
		{ID: "b2", Score: 0.3},
	}}}
	e := newTestEngine(graph, vector, &fakeEmbedClient{})

	q := &query.StructuredQuery{
		SearchMethod: query.SearchRelevant,
		Limit:        5,
		Participants: []query.Participant{{Name: "Jane", Role: model.RoleAuthor}},
	}
	results, err := e.Fetch(context.Background(), "emails from Jane", q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector.calls) != 1 || vector.calls[0].k != 20 {
		t.Fatalf("participants must widen k to 20: %+v", vector.calls)
	}
	if len(results) != 1 || results[0].Block.ID != "b1" {
		t.Fatalf("below-threshold matches must be cut: %+v", results)
	}
	if len(graph.calls) != 1 || len(graph.calls[0].filter.BlockIDs) != 1 {
		t.Fatalf("only above-threshold ids should resolve: %+v", graph.calls)
	}
}
