package chunk

import (
	"context"
	"fmt"

	"github.com/elattma/mimo-core-sub000/pkg/model"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Processor turns one discovery's raw blocks into validated, size-bounded
// blocks and a page-level summary.
type Processor struct {
	splitter   *Splitter
	summarizer *Summarizer
}

// NewProcessor creates a Processor from a splitter and a summarizer.
func NewProcessor(splitter *Splitter, summarizer *Summarizer) *Processor {
	return &Processor{splitter: splitter, summarizer: summarizer}
}

// Process builds blocks from the discovery's raw blocks and reduces their
// content to a single summary. Invalid blocks (no label, no timestamp, or
// no content after chunking) reject the whole discovery; nothing partial is
// returned on error.
func (p *Processor) Process(ctx context.Context, d model.Discovery) ([]*model.Block, string, error) {
	blocks := make([]*model.Block, 0, len(d.Blocks))
	summaryInputs := make([]string, 0, len(d.Blocks))

	for i, raw := range d.Blocks {
		id, err := gonanoid.New()
		if err != nil {
			return nil, "", err
		}

		block := &model.Block{
			ID:          id,
			Label:       raw.Label,
			LastUpdated: raw.LastUpdated,
			Properties:  raw.Properties,
		}

		if raw.Text != "" {
			for _, text := range p.splitter.Split(raw.Text) {
				block.Chunks = append(block.Chunks, model.Chunk{Text: text})
				summaryInputs = append(summaryInputs, text)
			}
		}
		if len(raw.Properties) > 0 {
			summaryInputs = append(summaryInputs, model.RenderProperties(raw.Label, raw.Properties))
		}

		if !block.IsValid() {
			return nil, "", fmt.Errorf("discovery %s: block %d is empty after chunking", d.ID, i)
		}
		blocks = append(blocks, block)
	}

	summary, err := p.summarizer.Summarize(ctx, summaryInputs)
	if err != nil {
		return nil, "", fmt.Errorf("discovery %s: %w", d.ID, err)
	}

	return blocks, summary, nil
}
