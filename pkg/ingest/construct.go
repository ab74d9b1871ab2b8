package ingest

import (
	"context"
	"fmt"

	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

// unit is one discovery's fully constructed state, ready for the write
// phase: the page with its blocks, the vector rows, and the name mentions.
type unit struct {
	page  *model.Page
	rows  []model.Row
	names []store.NameMention
}

// construct turns a discovery into a unit. Chunking, summarization, and
// embedding all happen here; any failure rejects the whole discovery so the
// write phase only ever sees complete units.
func (i *Ingestor) construct(ctx context.Context, d model.Discovery) (*unit, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("discovery %s is not ingestable", d.ID)
	}

	blocks, summary, err := i.processor.Process(ctx, d)
	if err != nil {
		return nil, err
	}

	var lastUpdated int64
	for _, b := range blocks {
		if b.LastUpdated > lastUpdated {
			lastUpdated = b.LastUpdated
		}
	}

	page := &model.Page{
		ID:          d.ID,
		Type:        d.Type,
		Connection:  d.Connection,
		Summary:     summary,
		LastUpdated: lastUpdated,
		Blocks:      blocks,
	}

	texts := make([][]byte, 0, len(blocks)+1)
	for _, b := range blocks {
		texts = append(texts, []byte(b.ContentText()))
	}
	texts = append(texts, []byte(summary))

	embeddings, err := util.RetryWithContext(ctx, i.maxRetries, func(ctx context.Context) ([][]float32, error) {
		return i.ai.GenerateEmbeddings(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding discovery %s: %w", d.ID, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding discovery %s: got %d vectors for %d texts", d.ID, len(embeddings), len(texts))
	}

	rows := make([]model.Row, 0, len(blocks)+1)
	for idx, b := range blocks {
		rows = append(rows, model.Row{
			ID:         b.ID,
			Kind:       model.RowKindBlock,
			Embedding:  embeddings[idx],
			Library:    i.library,
			DateDay:    model.DateDay(b.LastUpdated),
			BlockLabel: b.Label,
			PageType:   d.Type,
			Connection: d.Connection,
		})
	}
	rows = append(rows, model.Row{
		ID:         page.ID,
		Kind:       model.RowKindPageSummary,
		Embedding:  embeddings[len(embeddings)-1],
		Library:    i.library,
		DateDay:    model.DateDay(page.LastUpdated),
		BlockLabel: model.LabelSummary,
		PageType:   d.Type,
		Connection: d.Connection,
	})

	names := make([]store.NameMention, 0, len(d.Entities))
	for _, e := range d.Entities {
		if e.ID == "" {
			continue
		}
		names = append(names, store.NameMention{Name: e, PageIDs: []string{d.ID}})
	}

	return &unit{page: page, rows: rows, names: names}, nil
}
