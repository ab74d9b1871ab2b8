package vector

import (
	"testing"

	"github.com/elattma/mimo-core-sub000/pkg/model"

	"github.com/qdrant/go-client/qdrant"
)

func TestRowFromPointRestoresRow(t *testing.T) {
	point := &qdrant.RetrievedPoint{
		Payload: qdrant.NewValueMap(map[string]any{
			"id":          "block1",
			"kind":        "block",
			"library":     "lib1",
			"date_day":    "2026-08-30",
			"day":         int64(20260830),
			"block_label": "body",
			"page_type":   "email_thread",
			"connection":  "conn1",
		}),
		Vectors: &qdrant.VectorsOutput{
			VectorsOptions: &qdrant.VectorsOutput_Vector{
				Vector: &qdrant.VectorOutput{Data: []float32{0.25, -0.5, 1}},
			},
		},
	}

	row := rowFromPoint(point)
	want := model.Row{
		ID:         "block1",
		Kind:       model.RowKindBlock,
		Library:    "lib1",
		DateDay:    "2026-08-30",
		BlockLabel: model.LabelBody,
		PageType:   model.PageTypeEmailThread,
		Connection: "conn1",
		Embedding:  []float32{0.25, -0.5, 1},
	}
	if row.ID != want.ID || row.Kind != want.Kind || row.Library != want.Library ||
		row.DateDay != want.DateDay || row.BlockLabel != want.BlockLabel ||
		row.PageType != want.PageType || row.Connection != want.Connection {
		t.Fatalf("row mismatch: got %+v want %+v", row, want)
	}
	if len(row.Embedding) != 3 || row.Embedding[0] != 0.25 || row.Embedding[2] != 1 {
		t.Fatalf("embedding not restored: %v", row.Embedding)
	}
}

func TestRowFromPointWithoutVector(t *testing.T) {
	point := &qdrant.RetrievedPoint{
		Payload: qdrant.NewValueMap(map[string]any{
			"id":      "page1",
			"kind":    "page_summary",
			"library": "lib1",
		}),
	}

	row := rowFromPoint(point)
	if row.ID != "page1" || row.Kind != model.RowKindPageSummary {
		t.Fatalf("row mismatch: %+v", row)
	}
	if row.Embedding != nil {
		t.Fatalf("expected no embedding, got %v", row.Embedding)
	}
}
