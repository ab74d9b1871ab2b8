package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/chunk"
	"github.com/elattma/mimo-core-sub000/pkg/ingest"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

// SyncJobMsg is one ingestion job: a batch of discoveries fetched from a
// connection, ready to be chunked, embedded, and written.
type SyncJobMsg struct {
	Library     string            `json:"library"`
	Connection  string            `json:"connection"`
	Discoveries []model.Discovery `json:"discoveries"`
}

// ProcessSyncMessage ingests one sync job. Construction failures inside
// the batch are tallied and logged but only a store failure makes the job
// itself fail, which sends it to the retry queue.
func ProcessSyncMessage(
	ctx context.Context,
	aiClient ai.Client,
	graphStore store.GraphStore,
	vectorIndex store.VectorIndex,
	msg string,
) error {
	data := new(SyncJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("unmarshaling sync job: %w", err)
	}
	if data.Library == "" {
		return fmt.Errorf("sync job without a library")
	}

	splitter := chunk.NewSplitter(int(util.GetEnvNumeric("CHUNK_MAX_CHARS", chunk.DefaultMaxChars)))
	summarizer := chunk.NewSummarizer(chunk.NewSummarizerParams{
		Client: aiClient,
		FanOut: int(util.GetEnvNumeric("SUMMARY_FAN_OUT", chunk.DefaultFanOut)),
	})

	ingestor := ingest.NewIngestor(ingest.NewIngestorParams{
		Processor: chunk.NewProcessor(splitter, summarizer),
		AI:        aiClient,
		Graph:     graphStore,
		Vector:    vectorIndex,
		Library:   data.Library,
		BatchSize: int(util.GetEnvNumeric("INGEST_BATCH_SIZE", 20)),
		Parallel:  int(util.GetEnvNumeric("INGEST_PARALLEL", 4)),
	})

	total := ingest.Report{}
	for _, d := range data.Discoveries {
		report, err := ingestor.Add(ctx, d)
		if err != nil {
			return fmt.Errorf("flushing sync batch: %w", err)
		}
		if report != nil {
			total.Succeeded += report.Succeeded
			total.Failed = append(total.Failed, report.Failed...)
		}
	}
	report, err := ingestor.Close(ctx)
	if err != nil {
		return fmt.Errorf("closing ingestor: %w", err)
	}
	total.Succeeded += report.Succeeded
	total.Failed = append(total.Failed, report.Failed...)

	logger.Info("[Queue] Sync job done",
		"library", data.Library,
		"connection", data.Connection,
		"succeeded", total.Succeeded,
		"failed", len(total.Failed))
	for _, f := range total.Failed {
		logger.Warn("[Queue] Discovery not ingested", "discovery", f.DiscoveryID, "err", f.Err)
	}
	return nil
}
