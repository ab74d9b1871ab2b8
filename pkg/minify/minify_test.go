package minify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/model"
)

// fakeEmbedder maps each text to a one-dimensional embedding, so the
// euclidean distance to the zero-vector request equals the configured
// value directly.
type fakeEmbedder struct {
	distances map[string]float32
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{0}, nil
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		d, ok := f.distances[string(input)]
		if !ok {
			d = 9
		}
		out[i] = []float32{d}
	}
	return out, nil
}

func (f *fakeEmbedder) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeEmbedder) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not implemented")
}

func (f *fakeEmbedder) ResetMetrics()               {}
func (f *fakeEmbedder) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func textBlock(id, text string) *model.Block {
	return &model.Block{
		ID:          id,
		Label:       model.LabelBody,
		LastUpdated: 1700000000,
		Chunks:      []model.Chunk{{Text: text}},
	}
}

func newTestMinifier(distances map[string]float32, counter func(string) int) *Minifier {
	return NewMinifier(NewMinifierParams{
		AI:      &fakeEmbedder{distances: distances},
		Counter: counter,
	})
}

func TestMinifyWithinBudgetKeepsEverything(t *testing.T) {
	blocks := []*model.Block{
		textBlock("b1", "alpha beta"),
		textBlock("b2", "gamma delta epsilon"),
	}
	m := newTestMinifier(map[string]float32{
		"alpha beta":          2,
		"gamma delta epsilon": 1,
	}, wordCount)

	out, err := m.Minify(context.Background(), "request", blocks, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected both blocks retained, got %d", len(out))
	}
	// nearest first
	if out[0].ID != "b2" || out[1].ID != "b1" {
		t.Fatalf("expected distance order b2,b1, got %s,%s", out[0].ID, out[1].ID)
	}
	if len(out[0].Chunks) != 1 || len(out[1].Chunks) != 1 {
		t.Fatal("content must be unchanged when the budget fits")
	}
}

func TestMinifyDropsLeastRelevantFirst(t *testing.T) {
	// 200, 300, 250 token chunks plus a 50 token summary, budget 400:
	// the farthest blocks go first and the summary always survives.
	counts := map[string]int{
		"chunk one":   200,
		"chunk two":   300,
		"chunk three": 250,
		"the summary": 50,
	}
	counter := func(text string) int { return counts[text] }

	blocks := []*model.Block{
		textBlock("c1", "chunk one"),
		textBlock("c2", "chunk two"),
		textBlock("c3", "chunk three"),
		{
			ID:          "s",
			Label:       model.LabelSummary,
			LastUpdated: 1700000000,
			Chunks:      []model.Chunk{{Text: "the summary"}},
		},
	}
	m := newTestMinifier(map[string]float32{
		"the summary": 1,
		"chunk one":   2,
		"chunk three": 3,
		"chunk two":   4,
	}, counter)

	out, err := m.Minify(context.Background(), "what happened", blocks, 400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := 0
	ids := make([]string, 0, len(out))
	for _, b := range out {
		ids = append(ids, b.ID)
		for _, c := range b.Chunks {
			total += counts[c.Text]
		}
	}
	if total > 400 {
		t.Fatalf("total %d exceeds budget", total)
	}
	if strings.Join(ids, ",") != "s,c1" {
		t.Fatalf("expected summary and nearest chunk retained, got %v", ids)
	}
}

func TestMinifyNeverDropsMostRelevantBlock(t *testing.T) {
	blocks := []*model.Block{
		{
			ID:          "big",
			Label:       model.LabelBody,
			LastUpdated: 1700000000,
			Chunks: []model.Chunk{
				{Text: "near part"},
				{Text: "mid part"},
				{Text: "far part"},
			},
		},
		textBlock("other", "other content"),
	}
	m := newTestMinifier(map[string]float32{
		"near part":     1,
		"mid part":      2,
		"far part":      3,
		"other content": 5,
	}, wordCount)

	// Budget below even the most relevant block's 6 tokens: whole-block
	// drops stop at the last block and chunks go one at a time instead.
	out, err := m.Minify(context.Background(), "request", blocks, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].ID != "big" {
		t.Fatalf("most relevant block must survive, got %+v", out)
	}
	if len(out[0].Chunks) != 1 || out[0].Chunks[0].Text != "near part" {
		t.Fatalf("expected only the nearest chunk, got %+v", out[0].Chunks)
	}
}

func TestMinifyContentTooLarge(t *testing.T) {
	blocks := []*model.Block{textBlock("b1", "one two three four five")}
	m := newTestMinifier(map[string]float32{"one two three four five": 1}, wordCount)

	_, err := m.Minify(context.Background(), "request", blocks, 2)
	if !errors.Is(err, ErrContentTooLarge) {
		t.Fatalf("expected ErrContentTooLarge, got %v", err)
	}
}

func TestMinifyTiesKeepInputOrder(t *testing.T) {
	blocks := []*model.Block{
		textBlock("first", "same distance a"),
		textBlock("second", "same distance b"),
		textBlock("third", "same distance c"),
	}
	m := newTestMinifier(map[string]float32{
		"same distance a": 2,
		"same distance b": 2,
		"same distance c": 2,
	}, wordCount)

	out, err := m.Minify(context.Background(), "request", blocks, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].ID != "first" || out[1].ID != "second" || out[2].ID != "third" {
		t.Fatalf("ties must keep input order, got %s,%s,%s", out[0].ID, out[1].ID, out[2].ID)
	}
}

func TestMinifyRejectsNonPositiveBudget(t *testing.T) {
	m := newTestMinifier(nil, wordCount)
	if _, err := m.Minify(context.Background(), "request", []*model.Block{textBlock("b1", "x")}, 0); err == nil {
		t.Fatal("expected an error for a zero budget")
	}
}
