package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"

	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds one upsert request. Batches fail independently, so
// one bad batch costs at most this many rows.
const upsertBatchSize = 100

// Upsert writes rows in batches and reports per-batch accounting. A failed
// batch does not stop the remaining batches; the returned error joins every
// batch failure and the result tells partial from total loss.
func (v *VectorDBIndex) Upsert(ctx context.Context, rows []model.Row) (store.UpsertResult, error) {
	var result store.UpsertResult
	var errs []error

	for start := 0; start < len(rows); start += upsertBatchSize {
		end := util.Min(start+upsertBatchSize, len(rows))
		batch := rows[start:end]

		points := make([]*qdrant.PointStruct, 0, len(batch))
		for _, row := range batch {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(pointID(row.Library, row.ID)),
				Vectors: qdrant.NewVectors(row.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"id":          row.ID,
					"kind":        string(row.Kind),
					"library":     row.Library,
					"date_day":    row.DateDay,
					"day":         int64(dayNum(row.DateDay)),
					"block_label": string(row.BlockLabel),
					"page_type":   string(row.PageType),
					"connection":  row.Connection,
				}),
			})
		}

		_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: v.collection,
			Points:         points,
		})
		if err != nil {
			result.BatchesFailed++
			errs = append(errs, fmt.Errorf("upserting rows %d..%d: %w", start, end, err))
			logger.Error("[VectorDB] Upsert batch failed", "start", start, "end", end, "error", err)
			continue
		}
		result.BatchesWritten++
		result.RowsWritten += len(batch)
	}

	return result, errors.Join(errs...)
}

// Delete removes the points for the given row ids.
func (v *VectorDBIndex) Delete(ctx context.Context, library string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(library, id)))
	}

	_, err := v.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: v.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting %d points: %w", len(ids), err)
	}
	return nil
}

// DeleteByConnection removes every row of a connection through a payload
// filter. Unlike Delete it needs no ids, so it can run again after a
// partial failure and still reach rows whose graph nodes are already gone.
func (v *VectorDBIndex) DeleteByConnection(ctx context.Context, library string, connection string) error {
	_, err := v.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: v.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("library", library),
				qdrant.NewMatch("connection", connection),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("deleting points of connection %s: %w", connection, err)
	}
	return nil
}

// Fetch returns the stored rows for the given ids, embeddings included.
// Missing ids are skipped.
func (v *VectorDBIndex) Fetch(ctx context.Context, library string, ids []string) ([]model.Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(pointID(library, id)))
	}

	points, err := v.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: v.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %d points: %w", len(ids), err)
	}

	rows := make([]model.Row, 0, len(points))
	for _, p := range points {
		rows = append(rows, rowFromPoint(p))
	}
	return rows, nil
}

func rowFromPoint(p *qdrant.RetrievedPoint) model.Row {
	row := rowFromPayload(p.Payload)
	if vec := p.Vectors.GetVector(); vec != nil {
		row.Embedding = vec.GetData()
	}
	return row
}

func rowFromPayload(payload map[string]*qdrant.Value) model.Row {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return model.Row{
		ID:         get("id"),
		Kind:       model.RowKind(get("kind")),
		Library:    get("library"),
		DateDay:    get("date_day"),
		BlockLabel: model.BlockLabel(get("block_label")),
		PageType:   model.PageType(get("page_type")),
		Connection: get("connection"),
	}
}
