package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

// queryBuilder accumulates a parameterized statement. Every caller-supplied
// value goes through arg; query text never embeds values directly.
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *queryBuilder) write(s string) {
	b.sql.WriteString(s)
}

// escapeLike neutralizes LIKE wildcards in user-supplied substrings so a
// content predicate matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Query executes the structured filter and returns matching candidates,
// grouped by page in recency order and by block position within a page.
//
// Entity constraints resolve in two phases: name ids are looked up first
// (exact id or loose value match), then the main query restricts pages to
// those mentioning a resolved name. With MatchNameContent set, blocks must
// additionally contain a resolved id in their serialized content.
func (s *GraphDBStore) Query(ctx context.Context, f store.Filter) ([]store.Candidate, error) {
	if f.Library == "" {
		return nil, fmt.Errorf("query requires a library")
	}

	var nameIDs []string
	if len(f.NameIDs) > 0 || len(f.NameValues) > 0 {
		resolved, err := s.resolveNames(ctx, f.Library, f.NameIDs, f.NameValues)
		if err != nil {
			return nil, fmt.Errorf("resolving names: %w", err)
		}
		if len(resolved) == 0 {
			return nil, nil
		}
		nameIDs = resolved
	}

	b := &queryBuilder{}
	if f.SummaryOnly {
		buildSummaryQuery(b, f, nameIDs)
		return s.querySummaries(ctx, b)
	}
	buildBlockQuery(b, f, nameIDs)
	return s.queryBlocks(ctx, b)
}

func (s *GraphDBStore) resolveNames(ctx context.Context, library string, ids, values []string) ([]string, error) {
	b := &queryBuilder{}
	b.write("SELECT id FROM names WHERE library = " + b.arg(library) + " AND (")

	clauses := make([]string, 0, 2)
	if len(ids) > 0 {
		clauses = append(clauses, "id = ANY("+b.arg(ids)+")")
	}
	if len(values) > 0 {
		patterns := make([]string, 0, len(values))
		for _, v := range values {
			patterns = append(patterns, "%"+escapeLike(v)+"%")
		}
		clauses = append(clauses, "value ILIKE ANY("+b.arg(patterns)+")")
	}
	b.write(strings.Join(clauses, " OR ") + ")")

	rows, err := s.conn.Query(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolved []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		resolved = append(resolved, id)
	}
	return resolved, rows.Err()
}

// pageClauses appends the page-level predicates for alias p.
func pageClauses(b *queryBuilder, f store.Filter, nameIDs []string) {
	b.write("p.library = " + b.arg(f.Library))
	if len(f.PageIDs) > 0 {
		b.write(" AND p.id = ANY(" + b.arg(f.PageIDs) + ")")
	}
	if len(f.PageTypes) > 0 {
		types := make([]string, 0, len(f.PageTypes))
		for _, t := range f.PageTypes {
			types = append(types, string(t))
		}
		b.write(" AND p.page_type = ANY(" + b.arg(types) + ")")
	}
	if len(f.Connections) > 0 {
		b.write(" AND p.connection = ANY(" + b.arg(f.Connections) + ")")
	}
	if f.PageStart > 0 {
		b.write(" AND p.last_updated >= " + b.arg(f.PageStart))
	}
	if f.PageEnd > 0 {
		b.write(" AND p.last_updated <= " + b.arg(f.PageEnd))
	}
	if len(nameIDs) > 0 {
		b.write(" AND p.id IN (SELECT np.page_id FROM name_pages np WHERE np.library = " +
			b.arg(f.Library) + " AND np.name_id = ANY(" + b.arg(nameIDs) + "))")
	}
}

// blockClauses appends the block-level predicates for alias b. Returns
// whether any predicate was written.
func blockClauses(qb *queryBuilder, f store.Filter, nameIDs []string) bool {
	var clauses []string
	if len(f.BlockIDs) > 0 {
		clauses = append(clauses, "b.id = ANY("+qb.arg(f.BlockIDs)+")")
	}
	if len(f.BlockLabels) > 0 {
		labels := make([]string, 0, len(f.BlockLabels))
		for _, l := range f.BlockLabels {
			labels = append(labels, string(l))
		}
		clauses = append(clauses, "b.label = ANY("+qb.arg(labels)+")")
	}
	if f.BlockStart > 0 {
		clauses = append(clauses, "b.last_updated >= "+qb.arg(f.BlockStart))
	}
	if f.BlockEnd > 0 {
		clauses = append(clauses, "b.last_updated <= "+qb.arg(f.BlockEnd))
	}
	if f.Content != "" {
		clauses = append(clauses, "b.content ILIKE "+qb.arg("%"+escapeLike(f.Content)+"%"))
	}
	if f.MatchNameContent && len(nameIDs) > 0 {
		ors := make([]string, 0, len(nameIDs))
		for _, id := range nameIDs {
			ors = append(ors, "b.content LIKE "+qb.arg("%"+escapeLike(id)+"%"))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if len(clauses) == 0 {
		return false
	}
	qb.write(strings.Join(clauses, " AND "))
	return true
}

// buildMatchedPages writes the CTE selecting matching pages in recency
// order with pagination applied. A page matches when it satisfies the page
// predicates and, if block predicates exist, owns at least one block that
// satisfies them.
func buildMatchedPages(b *queryBuilder, f store.Filter, nameIDs []string) {
	b.write("WITH matched_pages AS (SELECT p.id, p.page_type, p.connection, p.summary, p.last_updated FROM pages p WHERE ")
	pageClauses(b, f, nameIDs)

	probe := &queryBuilder{args: b.args}
	if blockClauses(probe, f, nameIDs) {
		b.args = probe.args
		b.write(" AND EXISTS (SELECT 1 FROM page_blocks pb JOIN blocks b ON b.library = pb.library AND b.id = pb.block_id" +
			" WHERE pb.library = p.library AND pb.page_id = p.id AND " + probe.sql.String() + ")")
	}

	b.write(" ORDER BY p.last_updated DESC, p.id")
	if f.Limit > 0 {
		b.write(" LIMIT " + b.arg(f.Limit))
	}
	if f.Offset > 0 {
		b.write(" OFFSET " + b.arg(f.Offset))
	}
	b.write(")")
}

func buildBlockQuery(b *queryBuilder, f store.Filter, nameIDs []string) {
	buildMatchedPages(b, f, nameIDs)
	b.write(" SELECT mp.id, mp.page_type, mp.connection, b.id, b.label, b.last_updated, b.properties, b.chunks" +
		" FROM matched_pages mp" +
		" JOIN page_blocks pb ON pb.library = " + b.arg(f.Library) + " AND pb.page_id = mp.id" +
		" JOIN blocks b ON b.library = pb.library AND b.id = pb.block_id")

	probe := &queryBuilder{args: b.args}
	if blockClauses(probe, f, nameIDs) {
		b.args = probe.args
		b.write(" WHERE " + probe.sql.String())
	}
	b.write(" ORDER BY mp.last_updated DESC, mp.id, pb.pos")
}

func buildSummaryQuery(b *queryBuilder, f store.Filter, nameIDs []string) {
	buildMatchedPages(b, f, nameIDs)
	b.write(" SELECT mp.id, mp.page_type, mp.connection, mp.summary, mp.last_updated FROM matched_pages mp" +
		" ORDER BY mp.last_updated DESC, mp.id")
}

func (s *GraphDBStore) queryBlocks(ctx context.Context, b *queryBuilder) ([]store.Candidate, error) {
	rows, err := s.conn.Query(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []store.Candidate
	for rows.Next() {
		var (
			pageID, pageType, connection string
			blockID, label               string
			lastUpdated                  int64
			propsRaw, chunksRaw          []byte
		)
		if err := rows.Scan(&pageID, &pageType, &connection, &blockID, &label, &lastUpdated, &propsRaw, &chunksRaw); err != nil {
			return nil, err
		}

		block := &model.Block{
			ID:          blockID,
			Label:       model.BlockLabel(label),
			LastUpdated: lastUpdated,
		}
		if len(propsRaw) > 0 {
			if err := json.Unmarshal(propsRaw, &block.Properties); err != nil {
				return nil, fmt.Errorf("unmarshaling properties of block %s: %w", blockID, err)
			}
		}
		if len(chunksRaw) > 0 {
			if err := json.Unmarshal(chunksRaw, &block.Chunks); err != nil {
				return nil, fmt.Errorf("unmarshaling chunks of block %s: %w", blockID, err)
			}
		}

		candidates = append(candidates, store.Candidate{
			Block:      block,
			PageID:     pageID,
			PageType:   model.PageType(pageType),
			Connection: connection,
		})
	}
	return candidates, rows.Err()
}

func (s *GraphDBStore) querySummaries(ctx context.Context, b *queryBuilder) ([]store.Candidate, error) {
	rows, err := s.conn.Query(ctx, b.sql.String(), b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []store.Candidate
	for rows.Next() {
		var (
			pageID, pageType, connection, summary string
			lastUpdated                           int64
		)
		if err := rows.Scan(&pageID, &pageType, &connection, &summary, &lastUpdated); err != nil {
			return nil, err
		}
		if summary == "" {
			continue
		}

		candidates = append(candidates, store.Candidate{
			Block: &model.Block{
				ID:          pageID,
				Label:       model.LabelSummary,
				LastUpdated: lastUpdated,
				Chunks:      []model.Chunk{{Text: summary}},
			},
			PageID:     pageID,
			PageType:   model.PageType(pageType),
			Connection: connection,
		})
	}
	return candidates, rows.Err()
}
