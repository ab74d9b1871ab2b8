package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"

	"github.com/jackc/pgx/v5"
)

const upsertBlockSQL = `
INSERT INTO blocks (library, id, label, last_updated, properties, chunks, content)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (library, id) DO UPDATE SET
    label        = EXCLUDED.label,
    last_updated = EXCLUDED.last_updated,
    properties   = EXCLUDED.properties,
    chunks       = EXCLUDED.chunks,
    content      = EXCLUDED.content`

const upsertPageSQL = `
INSERT INTO pages (library, id, page_type, connection, summary, last_updated)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (library, id) DO UPDATE SET
    page_type    = EXCLUDED.page_type,
    connection   = EXCLUDED.connection,
    summary      = EXCLUDED.summary,
    last_updated = EXCLUDED.last_updated`

const detachPageBlocksSQL = `DELETE FROM page_blocks WHERE library = $1 AND page_id = $2`

const attachPageBlockSQL = `
INSERT INTO page_blocks (library, page_id, block_id, pos)
VALUES ($1, $2, $3, $4)
ON CONFLICT (library, page_id, block_id) DO UPDATE SET pos = EXCLUDED.pos`

// Merging roles keeps the union in order of first appearance, matching
// model.Name.MergeRoles.
const upsertNameSQL = `
INSERT INTO names (library, id, value, roles)
VALUES ($1, $2, $3, $4)
ON CONFLICT (library, id) DO UPDATE SET
    value = EXCLUDED.value,
    roles = (
        SELECT COALESCE(array_agg(r ORDER BY first_pos), '{}')
        FROM (
            SELECT r, min(ord) AS first_pos
            FROM unnest(names.roles || EXCLUDED.roles) WITH ORDINALITY AS u(r, ord)
            GROUP BY r
        ) merged
    )`

const attachNamePageSQL = `
INSERT INTO name_pages (library, name_id, page_id)
VALUES ($1, $2, $3)
ON CONFLICT (library, name_id, page_id) DO NOTHING`

// WriteBlocks upserts blocks as graph nodes. The content column holds the
// serialized properties and chunk texts, so content and entity predicates
// can match without unpacking JSONB.
func (s *GraphDBStore) WriteBlocks(ctx context.Context, library string, blocks []*model.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range blocks {
		props, err := json.Marshal(b.Properties)
		if err != nil {
			return fmt.Errorf("marshaling properties of block %s: %w", b.ID, err)
		}
		chunks, err := json.Marshal(b.Chunks)
		if err != nil {
			return fmt.Errorf("marshaling chunks of block %s: %w", b.ID, err)
		}
		content := util.SanitizeStoreText(b.ContentText())
		batch.Queue(upsertBlockSQL, library, b.ID, string(b.Label), b.LastUpdated, props, chunks, content)
	}

	return s.sendBatch(ctx, batch)
}

// WritePages upserts pages and replaces their consists edges. The previous
// edge set is detached first: a re-fetched page owns exactly its latest
// blocks, and blocks left without a page fall to Cleanup.
func (s *GraphDBStore) WritePages(ctx context.Context, library string, pages []*model.Page) error {
	if len(pages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pages {
		summary := util.SanitizeStoreText(p.Summary)
		batch.Queue(upsertPageSQL, library, p.ID, string(p.Type), p.Connection, summary, p.LastUpdated)
		batch.Queue(detachPageBlocksSQL, library, p.ID)
		for pos, b := range p.Blocks {
			batch.Queue(attachPageBlockSQL, library, p.ID, b.ID, pos)
		}
	}

	return s.sendBatch(ctx, batch)
}

// WriteNames upserts names and their mentions edges. Roles accumulate as a
// union across writes; mentions are additive.
func (s *GraphDBStore) WriteNames(ctx context.Context, library string, mentions []store.NameMention) error {
	if len(mentions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range mentions {
		roles := make([]string, 0, len(m.Name.Roles))
		for _, r := range m.Name.Roles {
			roles = append(roles, string(r))
		}
		batch.Queue(upsertNameSQL, library, m.Name.ID, m.Name.Value, roles)
		for _, pageID := range m.PageIDs {
			batch.Queue(attachNamePageSQL, library, m.Name.ID, pageID)
		}
	}

	return s.sendBatch(ctx, batch)
}

func (s *GraphDBStore) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.conn.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return results.Close()
}
