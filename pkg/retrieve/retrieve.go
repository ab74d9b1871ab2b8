package retrieve

import (
	"context"
	"fmt"

	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/query"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

const (
	defaultK = 10

	// participantWiden multiplies k when entity constraints are present,
	// so exact participant matches are not starved by unrelated but
	// semantically close content. participantThreshold then cuts the
	// widened set back to genuinely similar matches.
	participantWiden     = 4
	participantThreshold = 0.5
)

// Result is one retrieved block with its provenance and, for semantic
// search, the similarity score of the vector match.
type Result struct {
	store.Candidate
	Score float32
}

// Engine executes structured queries against the graph store and the
// vector index and merges the results into candidate blocks.
type Engine struct {
	ai      ai.Client
	graph   store.GraphStore
	vector  store.VectorIndex
	library string
}

type NewEngineParams struct {
	AI      ai.Client
	Graph   store.GraphStore
	Vector  store.VectorIndex
	Library string
}

func NewEngine(params NewEngineParams) *Engine {
	return &Engine{
		ai:      params.AI,
		graph:   params.Graph,
		vector:  params.Vector,
		library: params.Library,
	}
}

// Fetch dispatches on the query's search method. Exact queries run the
// graph filters directly; relevant queries run a vector search and resolve
// the matched ids through the graph. A relevant query that matches nothing
// and carries no filters retries as a search over page summaries, so an
// open question never silently returns nothing.
func (e *Engine) Fetch(ctx context.Context, request string, q *query.StructuredQuery) ([]Result, error) {
	if q == nil {
		q = &query.StructuredQuery{}
	}

	if q.SearchMethod == query.SearchExact {
		return e.fetchExact(ctx, q)
	}

	results, err := e.fetchRelevant(ctx, request, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && !q.HasFilters() {
		logger.Info("[Retrieve] No matches, falling back to summary search", "library", e.library)
		fallback := *q
		fallback.Granularity = query.GranularityPage
		return e.fetchRelevant(ctx, request, &fallback)
	}
	return results, nil
}

func (e *Engine) fetchExact(ctx context.Context, q *query.StructuredQuery) ([]Result, error) {
	f := e.graphFilter(q)
	// Participant-scoped block searches want the blocks that carry the
	// entity, not every block of every page mentioning it. The adapter
	// resolves the names first and then matches their ids inside the
	// serialized block content.
	if len(q.Participants) > 0 && q.Granularity != query.GranularityPage {
		f.MatchNameContent = true
	}

	candidates, err := e.graph.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("graph query: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{Candidate: c})
	}
	return results, nil
}

func (e *Engine) fetchRelevant(ctx context.Context, request string, q *query.StructuredQuery) ([]Result, error) {
	text := q.ConceptText()
	if text == "" {
		text = request
	}
	embedding, err := e.ai.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}

	k := q.Limit
	if k <= 0 {
		k = defaultK
	}
	widened := len(q.Participants) > 0
	if widened {
		k *= participantWiden
	}

	matches, err := e.vector.Query(ctx, e.library, embedding, e.rowFilter(q), k)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if widened {
		kept := matches[:0]
		for _, m := range matches {
			if m.Score >= participantThreshold {
				kept = append(kept, m)
			}
		}
		matches = kept
	}
	if len(matches) == 0 {
		return nil, nil
	}

	return e.resolve(ctx, q, matches)
}

// resolve turns ranked vector matches into full candidates via the graph,
// preserving the vector ranking.
func (e *Engine) resolve(ctx context.Context, q *query.StructuredQuery, matches []store.Match) ([]Result, error) {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}

	f := e.graphFilter(q)
	f.Limit = 0
	f.Offset = 0
	if q.Granularity == query.GranularityPage {
		f.PageIDs = ids
	} else {
		f.BlockIDs = ids
	}

	candidates, err := e.graph.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("resolving %d matches: %w", len(matches), err)
	}

	byID := make(map[string]store.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.Block.ID] = c
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ID]
		if !ok {
			// The row outlived its graph node; the next cleanup pass
			// removes it.
			logger.Debug("[Retrieve] Vector match without graph node", "id", m.ID)
			continue
		}
		results = append(results, Result{Candidate: c, Score: m.Score})
	}
	return results, nil
}

func (e *Engine) graphFilter(q *query.StructuredQuery) store.Filter {
	f := store.Filter{
		Library:     e.library,
		PageTypes:   q.PageTypes,
		Connections: q.Connections,
		BlockLabels: q.BlockLabels,
		SummaryOnly: q.Granularity == query.GranularityPage,
		Limit:       q.Limit,
	}
	if q.Time != nil {
		f.PageStart = q.Time.Start
		f.PageEnd = q.Time.End
	}
	for _, p := range q.Participants {
		f.NameValues = append(f.NameValues, p.Name)
	}
	if len(q.Concepts) == 1 {
		f.Content = q.Concepts[0]
	}
	return f
}

func (e *Engine) rowFilter(q *query.StructuredQuery) store.RowFilter {
	f := store.RowFilter{
		PageTypes:   q.PageTypes,
		Connections: q.Connections,
		BlockLabels: q.BlockLabels,
	}
	if q.Granularity == query.GranularityPage {
		f.Kind = model.RowKindPageSummary
		f.BlockLabels = nil
	} else {
		f.Kind = model.RowKindBlock
	}
	if q.Time != nil {
		if q.Time.Start > 0 {
			f.StartDay = model.DateDay(q.Time.Start)
		}
		if q.Time.End > 0 {
			f.EndDay = model.DateDay(q.Time.End)
		}
	}
	return f
}
