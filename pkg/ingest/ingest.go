package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/chunk"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize  = 20
	defaultParallel   = 4
	defaultMaxRetries = 3
)

// ItemError is one discovery's construction failure.
type ItemError struct {
	DiscoveryID string
	Err         error
}

// Report tallies a flush: how many discoveries made it through construction
// and which failed. Construction failures never abort the batch; store
// failures do, and surface as the flush error instead.
type Report struct {
	Succeeded int
	Failed    []ItemError
}

// Ingestor converts discoveries into durable dual-store state. Add queues;
// Flush constructs queued discoveries concurrently, then writes both stores
// in a fixed order and reconciles orphans.
type Ingestor struct {
	processor  *chunk.Processor
	ai         ai.Client
	graph      store.GraphStore
	vector     store.VectorIndex
	library    string
	batchSize  int
	parallel   int
	maxRetries int

	queueLock sync.Mutex
	queue     []model.Discovery

	// flushLock serializes flushes; at most one is in flight per instance.
	flushLock sync.Mutex
}

type NewIngestorParams struct {
	Processor *chunk.Processor
	AI        ai.Client
	Graph     store.GraphStore
	Vector    store.VectorIndex
	Library   string

	// BatchSize is the queue depth at which Add triggers a flush.
	BatchSize int
	// Parallel bounds concurrent per-discovery construction.
	Parallel int
	// MaxRetries bounds embedding retry attempts per discovery.
	MaxRetries int
}

func NewIngestor(params NewIngestorParams) *Ingestor {
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.Parallel <= 0 {
		params.Parallel = defaultParallel
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = defaultMaxRetries
	}
	return &Ingestor{
		processor:  params.Processor,
		ai:         params.AI,
		graph:      params.Graph,
		vector:     params.Vector,
		library:    params.Library,
		batchSize:  params.BatchSize,
		parallel:   params.Parallel,
		maxRetries: params.MaxRetries,
	}
}

// Add queues a discovery and flushes when the queue reaches the batch size.
// The returned report is nil when no flush was triggered.
func (i *Ingestor) Add(ctx context.Context, d model.Discovery) (*Report, error) {
	i.queueLock.Lock()
	i.queue = append(i.queue, d)
	full := len(i.queue) >= i.batchSize
	i.queueLock.Unlock()

	if !full {
		return nil, nil
	}
	return i.Flush(ctx)
}

// Flush drains the queue, constructs every discovery on a bounded worker
// pool, and writes the results. Construction failures are isolated per
// discovery and tallied; the write phase runs once, after all constructions
// join, in a fixed order: blocks, pages, names, vector rows, then cleanup.
func (i *Ingestor) Flush(ctx context.Context) (*Report, error) {
	i.flushLock.Lock()
	defer i.flushLock.Unlock()

	i.queueLock.Lock()
	batch := i.queue
	i.queue = nil
	i.queueLock.Unlock()

	report := &Report{}
	if len(batch) == 0 {
		return report, nil
	}

	units := make([]*unit, len(batch))
	failures := make([]*ItemError, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.parallel)
	for idx, d := range batch {
		g.Go(func() error {
			u, err := i.construct(gctx, d)
			if err != nil {
				failures[idx] = &ItemError{DiscoveryID: d.ID, Err: err}
				logger.Warn("[Ingest] Construction failed", "discovery", d.ID, "error", err)
				return nil
			}
			units[idx] = u
			return nil
		})
	}
	_ = g.Wait()

	var blocks []*model.Block
	var pages []*model.Page
	var rows []model.Row
	mentionsByName := map[string]*store.NameMention{}
	var nameOrder []string

	for idx := range batch {
		if failures[idx] != nil {
			report.Failed = append(report.Failed, *failures[idx])
			continue
		}
		u := units[idx]
		report.Succeeded++

		blocks = append(blocks, u.page.Blocks...)
		pages = append(pages, u.page)
		rows = append(rows, u.rows...)
		for _, m := range u.names {
			existing, ok := mentionsByName[m.Name.ID]
			if !ok {
				copied := m
				mentionsByName[m.Name.ID] = &copied
				nameOrder = append(nameOrder, m.Name.ID)
				continue
			}
			existing.Name.MergeRoles(m.Name.Roles...)
			existing.PageIDs = append(existing.PageIDs, m.PageIDs...)
		}
	}

	if len(pages) == 0 {
		return report, nil
	}

	mentions := make([]store.NameMention, 0, len(nameOrder))
	for _, id := range nameOrder {
		mentions = append(mentions, *mentionsByName[id])
	}

	if err := i.writePhase(ctx, blocks, pages, mentions, rows); err != nil {
		return report, err
	}

	logger.Info("[Ingest] Flushed batch",
		"library", i.library,
		"pages", len(pages),
		"blocks", len(blocks),
		"rows", len(rows),
		"failed", len(report.Failed))
	return report, nil
}

// writePhase persists one flush. Graph writes come first and the vector
// index last; a vector failure leaves graph state in place and the next
// cleanup pass reconciles. Order within the graph matters: pages reference
// blocks and names reference pages.
func (i *Ingestor) writePhase(ctx context.Context, blocks []*model.Block, pages []*model.Page, mentions []store.NameMention, rows []model.Row) error {
	if err := i.graph.WriteBlocks(ctx, i.library, blocks); err != nil {
		return fmt.Errorf("writing blocks: %w", err)
	}
	if err := i.graph.WritePages(ctx, i.library, pages); err != nil {
		return fmt.Errorf("writing pages: %w", err)
	}
	if err := i.graph.WriteNames(ctx, i.library, mentions); err != nil {
		return fmt.Errorf("writing names: %w", err)
	}

	result, err := i.vector.Upsert(ctx, rows)
	if err != nil {
		if !result.Partial() {
			return fmt.Errorf("upserting vector rows: %w", err)
		}
		logger.Warn("[Ingest] Partial vector upsert",
			"written", result.RowsWritten,
			"batchesFailed", result.BatchesFailed,
			"error", err)
	}

	orphans, err := i.graph.Cleanup(ctx, i.library)
	if err != nil {
		return fmt.Errorf("cleaning up orphan blocks: %w", err)
	}
	if len(orphans) > 0 {
		if err := i.vector.Delete(ctx, i.library, orphans); err != nil {
			return fmt.Errorf("deleting %d orphan rows: %w", len(orphans), err)
		}
		logger.Info("[Ingest] Removed orphan blocks", "library", i.library, "count", len(orphans))
	}
	return nil
}

// Close flushes whatever is still queued. The ingestor does not own its
// store connections, so there is nothing else to release.
func (i *Ingestor) Close(ctx context.Context) (*Report, error) {
	return i.Flush(ctx)
}
