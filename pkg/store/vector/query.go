package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/elattma/mimo-core-sub000/pkg/store"

	"github.com/qdrant/go-client/qdrant"
)

// Query runs a filtered nearest-neighbor search and returns up to k
// matches by descending similarity. The library condition is always
// present; rows from other tenants can never surface.
func (v *VectorDBIndex) Query(ctx context.Context, library string, embedding []float32, f store.RowFilter, k int) ([]store.Match, error) {
	limit := uint64(k)
	points, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: v.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         buildFilter(library, f),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	matches := make([]store.Match, 0, len(points))
	for _, p := range points {
		id := ""
		if val, ok := p.Payload["id"]; ok {
			id = val.GetStringValue()
		}
		if id == "" {
			continue
		}
		matches = append(matches, store.Match{ID: id, Score: p.Score})
	}
	return matches, nil
}

// buildFilter translates a RowFilter into qdrant conditions. Day bounds
// compare on the numeric day payload so string dates never need lexical
// range support.
func buildFilter(library string, f store.RowFilter) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch("library", library),
	}

	if f.Kind != "" {
		must = append(must, qdrant.NewMatch("kind", string(f.Kind)))
	}
	if len(f.PageTypes) > 0 {
		types := make([]string, 0, len(f.PageTypes))
		for _, t := range f.PageTypes {
			types = append(types, string(t))
		}
		must = append(must, qdrant.NewMatchKeywords("page_type", types...))
	}
	if len(f.Connections) > 0 {
		must = append(must, qdrant.NewMatchKeywords("connection", f.Connections...))
	}
	if len(f.BlockLabels) > 0 {
		labels := make([]string, 0, len(f.BlockLabels))
		for _, l := range f.BlockLabels {
			labels = append(labels, string(l))
		}
		must = append(must, qdrant.NewMatchKeywords("block_label", labels...))
	}
	if len(f.IDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("id", f.IDs...))
	}

	if f.StartDay != "" || f.EndDay != "" {
		r := &qdrant.Range{}
		if start := dayNum(f.StartDay); start > 0 {
			gte := float64(start)
			r.Gte = &gte
		}
		if end := dayNum(f.EndDay); end > 0 {
			lte := float64(end)
			r.Lte = &lte
		}
		if r.Gte != nil || r.Lte != nil {
			must = append(must, qdrant.NewRange("day", r))
		}
	}

	return &qdrant.Filter{Must: must}
}

// dayNum converts a "2006-01-02" day into its sortable numeric form,
// 20060102. Unparsable input yields 0.
func dayNum(day string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(day, "-", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
