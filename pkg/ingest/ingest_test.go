package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/chunk"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

type fakeAI struct {
	embedCalls int
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (f *fakeAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	f.embedCalls++
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "a condensed summary", nil
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (f *fakeAI) ResetMetrics()               {}
func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

type fakeGraph struct {
	calls    []string
	blocks   []*model.Block
	pages    []*model.Page
	mentions []store.NameMention
	orphans  []string

	failOn string
}

func (f *fakeGraph) WriteBlocks(ctx context.Context, library string, blocks []*model.Block) error {
	f.calls = append(f.calls, "blocks")
	if f.failOn == "blocks" {
		return errors.New("graph down")
	}
	f.blocks = append(f.blocks, blocks...)
	return nil
}

func (f *fakeGraph) WritePages(ctx context.Context, library string, pages []*model.Page) error {
	f.calls = append(f.calls, "pages")
	if f.failOn == "pages" {
		return errors.New("graph down")
	}
	f.pages = append(f.pages, pages...)
	return nil
}

func (f *fakeGraph) WriteNames(ctx context.Context, library string, mentions []store.NameMention) error {
	f.calls = append(f.calls, "names")
	f.mentions = append(f.mentions, mentions...)
	return nil
}

func (f *fakeGraph) Query(ctx context.Context, filter store.Filter) ([]store.Candidate, error) {
	return nil, nil
}

func (f *fakeGraph) Cleanup(ctx context.Context, library string) ([]string, error) {
	f.calls = append(f.calls, "cleanup")
	return f.orphans, nil
}

func (f *fakeGraph) DeleteConnection(ctx context.Context, library, connection string) ([]string, error) {
	return nil, nil
}

type fakeVector struct {
	calls   []string
	rows    []model.Row
	deleted []string
}

func (f *fakeVector) Upsert(ctx context.Context, rows []model.Row) (store.UpsertResult, error) {
	f.calls = append(f.calls, "upsert")
	f.rows = append(f.rows, rows...)
	return store.UpsertResult{RowsWritten: len(rows), BatchesWritten: 1}, nil
}

func (f *fakeVector) Delete(ctx context.Context, library string, ids []string) error {
	f.calls = append(f.calls, "delete")
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeVector) DeleteByConnection(ctx context.Context, library, connection string) error {
	f.calls = append(f.calls, "deleteByConnection")
	return nil
}

func (f *fakeVector) Query(ctx context.Context, library string, embedding []float32, filter store.RowFilter, k int) ([]store.Match, error) {
	return nil, nil
}

func (f *fakeVector) Fetch(ctx context.Context, library string, ids []string) ([]model.Row, error) {
	return nil, nil
}

func newTestIngestor(graph *fakeGraph, vector *fakeVector, batchSize int) *Ingestor {
	client := &fakeAI{}
	processor := chunk.NewProcessor(
		chunk.NewSplitter(0),
		chunk.NewSummarizer(chunk.NewSummarizerParams{Client: client}),
	)
	return NewIngestor(NewIngestorParams{
		Processor: processor,
		AI:        client,
		Graph:     graph,
		Vector:    vector,
		Library:   "lib-1",
		BatchSize: batchSize,
	})
}

func discovery(id string) model.Discovery {
	return model.Discovery{
		ID:         id,
		Type:       model.PageTypeEmailThread,
		Connection: "conn-1",
		Blocks: []model.RawBlock{
			{Label: model.LabelTitle, LastUpdated: 1700000000, Text: "Quarterly renewal discussion."},
			{Label: model.LabelBody, LastUpdated: 1700000100, Text: "We should revisit the contract terms."},
		},
		Entities: []model.Name{
			{ID: "jane@acme.com", Value: "Jane", Roles: []model.Role{model.RoleAuthor}},
		},
	}
}

func TestFlushWritesInOrder(t *testing.T) {
	graph := &fakeGraph{orphans: []string{"stale-1"}}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 100)

	for _, id := range []string{"page-1", "page-2"} {
		if _, err := ing.Add(context.Background(), discovery(id)); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}
	report, err := ing.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if report.Succeeded != 2 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	order := strings.Join(graph.calls, ",") + "|" + strings.Join(vector.calls, ",")
	if order != "blocks,pages,names,cleanup|upsert,delete" {
		t.Fatalf("unexpected call order: %s", order)
	}
	if len(graph.pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(graph.pages))
	}
	// 2 blocks + 1 summary row per page
	if len(vector.rows) != 6 {
		t.Fatalf("expected 6 vector rows, got %d", len(vector.rows))
	}
	if len(vector.deleted) != 1 || vector.deleted[0] != "stale-1" {
		t.Fatalf("expected orphan row deletion, got %v", vector.deleted)
	}
}

func TestFlushRowMetadata(t *testing.T) {
	graph := &fakeGraph{}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 100)

	if _, err := ing.Add(context.Background(), discovery("page-1")); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if _, err := ing.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	var summaries, blocks int
	for _, row := range vector.rows {
		if row.Library != "lib-1" {
			t.Fatalf("row %s missing library scope", row.ID)
		}
		if row.DateDay == "" || row.Connection != "conn-1" {
			t.Fatalf("row %s missing metadata: %+v", row.ID, row)
		}
		switch row.Kind {
		case model.RowKindPageSummary:
			summaries++
			if row.ID != "page-1" {
				t.Fatalf("summary row must use the page id, got %s", row.ID)
			}
		case model.RowKindBlock:
			blocks++
		}
	}
	if summaries != 1 || blocks != 2 {
		t.Fatalf("expected 2 block rows and 1 summary row, got %d/%d", blocks, summaries)
	}
}

func TestFlushIsolatesConstructionFailures(t *testing.T) {
	graph := &fakeGraph{}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 100)

	bad := discovery("")
	if _, err := ing.Add(context.Background(), bad); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if _, err := ing.Add(context.Background(), discovery("page-1")); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	report, err := ing.Flush(context.Background())
	if err != nil {
		t.Fatalf("construction failure must not fail the flush: %v", err)
	}
	if report.Succeeded != 1 || len(report.Failed) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(graph.pages) != 1 || graph.pages[0].ID != "page-1" {
		t.Fatalf("surviving discovery should still be written, got %+v", graph.pages)
	}
}

func TestFlushStoreFailureAbortsBatch(t *testing.T) {
	graph := &fakeGraph{failOn: "pages"}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 100)

	if _, err := ing.Add(context.Background(), discovery("page-1")); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if _, err := ing.Flush(context.Background()); err == nil {
		t.Fatal("expected a flush error on store failure")
	}
	if len(vector.calls) != 0 {
		t.Fatalf("vector index must not be written after a graph failure, got %v", vector.calls)
	}
}

func TestAddTriggersFlushAtBatchSize(t *testing.T) {
	graph := &fakeGraph{}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 2)

	report, err := ing.Add(context.Background(), discovery("page-1"))
	if err != nil || report != nil {
		t.Fatalf("first add should only queue, got report=%+v err=%v", report, err)
	}
	report, err = ing.Add(context.Background(), discovery("page-2"))
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if report == nil || report.Succeeded != 2 {
		t.Fatalf("second add should flush both discoveries, got %+v", report)
	}
}

func TestNamesMergeAcrossDiscoveries(t *testing.T) {
	graph := &fakeGraph{}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 100)

	d1 := discovery("page-1")
	d2 := discovery("page-2")
	d2.Entities[0].Roles = []model.Role{model.RoleRecipient}

	for _, d := range []model.Discovery{d1, d2} {
		if _, err := ing.Add(context.Background(), d); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}
	if _, err := ing.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if len(graph.mentions) != 1 {
		t.Fatalf("expected one merged mention, got %d", len(graph.mentions))
	}
	m := graph.mentions[0]
	if len(m.PageIDs) != 2 {
		t.Fatalf("expected both pages mentioned, got %v", m.PageIDs)
	}
	if len(m.Name.Roles) != 2 {
		t.Fatalf("expected merged roles, got %v", m.Name.Roles)
	}
}

func TestFlushEmptyQueue(t *testing.T) {
	graph := &fakeGraph{}
	vector := &fakeVector{}
	ing := newTestIngestor(graph, vector, 100)

	report, err := ing.Flush(context.Background())
	if err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if report.Succeeded != 0 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(graph.calls) != 0 || len(vector.calls) != 0 {
		t.Fatal("empty flush must not touch the stores")
	}
}
