package query

import (
	"github.com/elattma/mimo-core-sub000/pkg/model"
)

// SearchMethod selects how a retrieval executes: exact runs structured
// graph filters only, relevant runs semantic vector search first.
type SearchMethod string

const (
	SearchExact    SearchMethod = "exact"
	SearchRelevant SearchMethod = "relevant"
)

// Granularity selects what a retrieval returns: whole pages (their
// summaries) or individual blocks.
type Granularity string

const (
	GranularityPage  Granularity = "page"
	GranularityBlock Granularity = "block"
)

// Participant is a named-entity constraint with the role the request
// implies for it.
type Participant struct {
	Name string     `json:"name"`
	Role model.Role `json:"role"`
}

// TimeFilter bounds results by epoch seconds. Zero means unbounded on
// that side.
type TimeFilter struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// StructuredQuery is the compiled, typed representation of a retrieval
// request. Immutable once compiled; owned by a single retrieval call.
type StructuredQuery struct {
	SearchMethod SearchMethod
	Granularity  Granularity
	Concepts     []string
	Participants []Participant
	Time         *TimeFilter
	Limit        int
	PageTypes    []model.PageType
	BlockLabels  []model.BlockLabel
	Connections  []string
}

// HasFilters reports whether the query carries any narrowing constraint.
// A query without filters is eligible for the summary-search fallback.
func (q *StructuredQuery) HasFilters() bool {
	if q == nil {
		return false
	}
	return len(q.Participants) > 0 ||
		q.Time != nil ||
		len(q.PageTypes) > 0 ||
		len(q.BlockLabels) > 0 ||
		len(q.Connections) > 0
}

// ConceptText joins the query's concept strings into the text that gets
// embedded for semantic search.
func (q *StructuredQuery) ConceptText() string {
	text := ""
	for i, c := range q.Concepts {
		if i > 0 {
			text += " "
		}
		text += c
	}
	return text
}
