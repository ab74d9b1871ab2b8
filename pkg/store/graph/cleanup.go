package graph

import (
	"context"
	"fmt"
)

const deleteOrphanBlocksSQL = `
DELETE FROM blocks b
WHERE b.library = $1
  AND NOT EXISTS (
      SELECT 1 FROM page_blocks pb
      WHERE pb.library = b.library AND pb.block_id = b.id
  )
RETURNING b.id`

const deleteConnectionPagesSQL = `
DELETE FROM pages WHERE library = $1 AND connection = $2 RETURNING id`

const deletePageEdgesSQL = `
DELETE FROM page_blocks WHERE library = $1 AND page_id = ANY($2)`

const deleteNameEdgesSQL = `
DELETE FROM name_pages WHERE library = $1 AND page_id = ANY($2)`

const deleteOrphanNamesSQL = `
DELETE FROM names n
WHERE n.library = $1
  AND NOT EXISTS (
      SELECT 1 FROM name_pages np
      WHERE np.library = n.library AND np.name_id = n.id
  )`

// Cleanup deletes blocks no page references anymore and returns their ids.
// Pages replace their edge set on every write, so anything detached since
// the last cycle is collected here.
func (s *GraphDBStore) Cleanup(ctx context.Context, library string) ([]string, error) {
	rows, err := s.conn.Query(ctx, deleteOrphanBlocksSQL, library)
	if err != nil {
		return nil, fmt.Errorf("deleting orphan blocks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteConnection removes every page of a connection together with its
// edges, prunes names left without mentions, then collects the blocks the
// deletion orphaned. Returns all removed page and block ids so the caller
// can drop the matching vector rows.
func (s *GraphDBStore) DeleteConnection(ctx context.Context, library string, connection string) ([]string, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, deleteConnectionPagesSQL, library, connection)
	if err != nil {
		return nil, fmt.Errorf("deleting pages of connection %s: %w", connection, err)
	}
	var pageIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		pageIDs = append(pageIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pageIDs) == 0 {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, deletePageEdgesSQL, library, pageIDs); err != nil {
		return nil, fmt.Errorf("detaching blocks: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteNameEdgesSQL, library, pageIDs); err != nil {
		return nil, fmt.Errorf("detaching names: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteOrphanNamesSQL, library); err != nil {
		return nil, fmt.Errorf("pruning names: %w", err)
	}

	blockRows, err := tx.Query(ctx, deleteOrphanBlocksSQL, library)
	if err != nil {
		return nil, fmt.Errorf("deleting orphan blocks: %w", err)
	}
	removed := pageIDs
	for blockRows.Next() {
		var id string
		if err := blockRows.Scan(&id); err != nil {
			blockRows.Close()
			return nil, err
		}
		removed = append(removed, id)
	}
	blockRows.Close()
	if err := blockRows.Err(); err != nil {
		return nil, err
	}

	return removed, tx.Commit(ctx)
}
