package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/ai"

	"golang.org/x/sync/errgroup"
)

// DefaultFanOut is how many texts one reduction step condenses at a time.
const DefaultFanOut = 10

// Summarizer condenses a page's texts into a single summary by bottom-up
// tree reduction: groups of at most fanOut texts are summarized by the
// completion capability, and the intermediate summaries are grouped and
// summarized again until exactly one remains.
type Summarizer struct {
	client     ai.Client
	fanOut     int
	parallel   int
	maxRetries int
}

// NewSummarizerParams configures a Summarizer. Zero values select defaults
// (fanOut 10, parallel 4, maxRetries 3).
type NewSummarizerParams struct {
	Client     ai.Client
	FanOut     int
	Parallel   int
	MaxRetries int
}

// NewSummarizer creates a Summarizer backed by the given model client.
func NewSummarizer(params NewSummarizerParams) *Summarizer {
	fanOut := params.FanOut
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 4
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Summarizer{
		client:     params.Client,
		fanOut:     fanOut,
		parallel:   parallel,
		maxRetries: maxRetries,
	}
}

// Summarize reduces texts to one summary string. A single text is returned
// verbatim without touching the model. A completion failure fails the whole
// call; no partial summary is returned.
func (s *Summarizer) Summarize(ctx context.Context, texts []string) (string, error) {
	texts = dropEmpty(texts)
	if len(texts) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}
	if len(texts) == 1 {
		return texts[0], nil
	}

	level := texts
	for len(level) > 1 {
		reduced, err := s.reduceLevel(ctx, level)
		if err != nil {
			return "", err
		}
		level = reduced
	}
	return level[0], nil
}

func (s *Summarizer) reduceLevel(ctx context.Context, texts []string) ([]string, error) {
	groups := groupTexts(texts, s.fanOut)
	out := make([]string, len(groups))
	mu := sync.Mutex{}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallel)
	for i, group := range groups {
		idx := i
		g := group
		eg.Go(func() error {
			summary, err := util.RetryWithContext(gCtx, s.maxRetries, func(ctx context.Context) (string, error) {
				return s.client.GenerateCompletion(ctx, fmt.Sprintf(ai.SummarizePrompt, strings.Join(g, "\n\n")))
			})
			if err != nil {
				return fmt.Errorf("failed to condense group %d: %w", idx, err)
			}
			mu.Lock()
			out[idx] = strings.TrimSpace(summary)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func groupTexts(texts []string, fanOut int) [][]string {
	var groups [][]string
	for start := 0; start < len(texts); start += fanOut {
		end := min(start+fanOut, len(texts))
		groups = append(groups, texts[start:end])
	}
	return groups
}

func dropEmpty(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
