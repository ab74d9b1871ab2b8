package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/model"
)

type fakeAIClient struct {
	mu          sync.Mutex
	completions int
	failAlways  bool
}

func (f *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{0, 0, 0}, nil
}

func (f *fakeAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func (f *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	f.completions++
	n := f.completions
	f.mu.Unlock()
	if f.failAlways {
		return "", errors.New("model unavailable")
	}
	return fmt.Sprintf("summary-%d", n), nil
}

func (f *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("not used")
}

func (f *fakeAIClient) ResetMetrics()                {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (f *fakeAIClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completions
}

func newTestSummarizer(client ai.Client, fanOut int) *Summarizer {
	return NewSummarizer(NewSummarizerParams{
		Client:     client,
		FanOut:     fanOut,
		Parallel:   2,
		MaxRetries: 1,
	})
}

func TestSummarizeSingleTextSkipsReduction(t *testing.T) {
	client := &fakeAIClient{}
	s := newTestSummarizer(client, 10)

	got, err := s.Summarize(context.Background(), []string{"only text"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "only text" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if client.calls() != 0 {
		t.Fatalf("expected no model calls, got %d", client.calls())
	}
}

func TestSummarizeWithinFanOutSingleCall(t *testing.T) {
	client := &fakeAIClient{}
	s := newTestSummarizer(client, 10)

	got, err := s.Summarize(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "summary-") {
		t.Fatalf("unexpected summary: %q", got)
	}
	if client.calls() != 1 {
		t.Fatalf("expected 1 model call, got %d", client.calls())
	}
}

func TestSummarizeTreeReduction(t *testing.T) {
	client := &fakeAIClient{}
	s := newTestSummarizer(client, 3)

	texts := make([]string, 9)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	got, err := s.Summarize(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty summary")
	}
	// 9 texts with fan-out 3: first level 3 calls, second level 1 call.
	if client.calls() != 4 {
		t.Fatalf("expected 4 model calls, got %d", client.calls())
	}
}

func TestSummarizeFailurePropagates(t *testing.T) {
	client := &fakeAIClient{failAlways: true}
	s := newTestSummarizer(client, 3)

	_, err := s.Summarize(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error when completion fails")
	}
}

func TestProcessorBuildsBlocksAndSummary(t *testing.T) {
	client := &fakeAIClient{}
	p := NewProcessor(NewSplitter(100), newTestSummarizer(client, 10))

	discovery := model.Discovery{
		ID:         "ticket-9",
		Type:       model.PageTypeSupportTicket,
		Connection: "zendesk-main",
		Blocks: []model.RawBlock{
			{
				Label:       model.LabelTitle,
				LastUpdated: 1700000000,
				Text:        "Printer on fire.",
			},
			{
				Label:       model.LabelComment,
				LastUpdated: 1700000100,
				Text:        "We looked into it. The printer is indeed on fire.",
			},
			{
				Label:       model.LabelContact,
				LastUpdated: 1700000100,
				Properties:  map[string]string{"email": "jane@acme.io", "name": "Jane"},
			},
		},
	}

	blocks, summary, err := p.Process(context.Background(), discovery)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	for i, b := range blocks {
		if !b.IsValid() {
			t.Fatalf("block %d is invalid", i)
		}
		if b.ID == "" {
			t.Fatalf("block %d has no id", i)
		}
	}
	if len(blocks[0].Chunks) == 0 {
		t.Fatal("title block should carry chunks")
	}
	if len(blocks[2].Properties) == 0 {
		t.Fatal("contact block should carry properties")
	}
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
}
