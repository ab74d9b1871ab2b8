package vector

import (
	"testing"

	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

func TestBuildFilterAlwaysScopesLibrary(t *testing.T) {
	f := buildFilter("lib-1", store.RowFilter{})
	if len(f.Must) != 1 {
		t.Fatalf("expected only the library condition, got %d", len(f.Must))
	}
	field := f.Must[0].GetField()
	if field == nil || field.Key != "library" {
		t.Fatalf("expected library condition, got %+v", f.Must[0])
	}
	if got := field.GetMatch().GetKeyword(); got != "lib-1" {
		t.Fatalf("expected library lib-1, got %q", got)
	}
}

func TestBuildFilterConditions(t *testing.T) {
	f := buildFilter("lib-1", store.RowFilter{
		Kind:        model.RowKindBlock,
		PageTypes:   []model.PageType{model.PageTypeEmailThread, model.PageTypeDocument},
		Connections: []string{"conn-1"},
		BlockLabels: []model.BlockLabel{model.LabelBody},
		StartDay:    "2026-08-01",
		EndDay:      "2026-08-30",
	})

	// library, kind, page_type, connection, block_label, day range
	if len(f.Must) != 6 {
		t.Fatalf("expected 6 conditions, got %d", len(f.Must))
	}

	keys := map[string]bool{}
	for _, c := range f.Must {
		if field := c.GetField(); field != nil {
			keys[field.Key] = true
		}
	}
	for _, want := range []string{"library", "kind", "page_type", "connection", "block_label", "day"} {
		if !keys[want] {
			t.Errorf("missing condition on %q", want)
		}
	}
}

func TestBuildFilterDayRange(t *testing.T) {
	f := buildFilter("lib-1", store.RowFilter{StartDay: "2026-08-01"})
	var found bool
	for _, c := range f.Must {
		field := c.GetField()
		if field == nil || field.Key != "day" {
			continue
		}
		found = true
		r := field.GetRange()
		if r == nil || r.Gte == nil || *r.Gte != 20260801 {
			t.Fatalf("expected Gte 20260801, got %+v", r)
		}
		if r.Lte != nil {
			t.Fatalf("expected open upper bound, got %v", *r.Lte)
		}
	}
	if !found {
		t.Fatal("expected a day range condition")
	}
}

func TestDayNum(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2026-08-30", 20260830},
		{"2023-11-14", 20231114},
		{"", 0},
		{"not-a-day", 0},
	}
	for _, tt := range tests {
		if got := dayNum(tt.in); got != tt.want {
			t.Errorf("dayNum(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := pointID("lib-1", "block-1")
	b := pointID("lib-1", "block-1")
	if a != b {
		t.Fatalf("point id not deterministic: %s vs %s", a, b)
	}
	if pointID("lib-2", "block-1") == a {
		t.Fatal("different libraries must map to different points")
	}
	if pointID("lib-1", "block-2") == a {
		t.Fatal("different rows must map to different points")
	}
}
