package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/ai"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/model"
)

const defaultMaxRetries = 2

// compiledOutput is the closed schema the completion capability fills.
// Every enumerable field is validated after parsing; values outside the
// enumeration are dropped, never fatal.
type compiledOutput struct {
	SearchMethod      string              `json:"search_method,omitempty" jsonschema:"enum=exact,enum=relevant,description=How to search"`
	ReturnGranularity string              `json:"return_granularity,omitempty" jsonschema:"enum=page,enum=block,description=What to return"`
	Concepts          []string            `json:"concepts,omitempty" jsonschema:"description=Topics or content the request asks about"`
	Participants      []outputParticipant `json:"participants,omitempty" jsonschema:"description=People or organizations the request names"`
	StartDay          string              `json:"start_day,omitempty" jsonschema:"description=Inclusive lower bound as YYYY-MM-DD"`
	EndDay            string              `json:"end_day,omitempty" jsonschema:"description=Inclusive upper bound as YYYY-MM-DD"`
	Limit             int                 `json:"limit,omitempty" jsonschema:"description=Requested result count"`
	PageTypes         []string            `json:"page_types,omitempty" jsonschema:"description=Source record kinds to search"`
	BlockLabels       []string            `json:"block_labels,omitempty" jsonschema:"description=Block kinds to search"`
}

type outputParticipant struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Compiler turns a natural-language request into a StructuredQuery using
// the completion capability. Compilation never hard-fails: malformed model
// output degrades to whatever parsed, and total failure degrades to an
// empty query, which downstream retrieval treats as a semantic search over
// summaries.
type Compiler struct {
	ai         ai.Client
	clock      func() time.Time
	maxRetries int
}

type NewCompilerParams struct {
	AI ai.Client

	// Clock resolves relative time phrases. Defaults to time.Now.
	Clock func() time.Time

	MaxRetries int
}

func NewCompiler(params NewCompilerParams) *Compiler {
	if params.Clock == nil {
		params.Clock = time.Now
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = defaultMaxRetries
	}
	return &Compiler{
		ai:         params.AI,
		clock:      params.Clock,
		maxRetries: params.MaxRetries,
	}
}

// Compile builds the structured query for a request. Explicit caller
// filters always win: when the caller pinned a search method the model is
// not consulted at all, and otherwise model output only fills fields the
// caller left empty.
func (c *Compiler) Compile(ctx context.Context, request string, explicit *StructuredQuery) *StructuredQuery {
	q := &StructuredQuery{}
	if explicit != nil {
		copied := *explicit
		q = &copied
	}
	if q.SearchMethod != "" {
		return q
	}

	out := &compiledOutput{}
	prompt := c.buildPrompt(request)
	err := util.RetryErrWithContext(ctx, c.maxRetries, func(ctx context.Context) error {
		*out = compiledOutput{}
		return c.ai.GenerateCompletionWithFormat(ctx,
			"structured_query",
			"A structured retrieval query compiled from a natural-language request.",
			prompt,
			out,
		)
	})
	if err != nil {
		logger.Warn("[Compile] Falling back to an empty query", "error", err)
		return q
	}

	c.merge(q, out)
	return q
}

func (c *Compiler) buildPrompt(request string) string {
	pageTypes := make([]string, 0, len(model.PageTypes()))
	for _, t := range model.PageTypes() {
		pageTypes = append(pageTypes, string(t))
	}
	blockLabels := make([]string, 0, len(model.BlockLabels()))
	for _, l := range model.BlockLabels() {
		blockLabels = append(blockLabels, string(l))
	}
	roles := []string{
		string(model.RoleAuthor),
		string(model.RoleRecipient),
		string(model.RoleParticipant),
		string(model.RoleUnknown),
	}

	return fmt.Sprintf(ai.CompileQueryPrompt,
		strings.Join(pageTypes, ", "),
		strings.Join(blockLabels, ", "),
		strings.Join(roles, ", "),
		c.clock().UTC().Format("2006-01-02"),
		request,
	)
}

// merge fills the query's empty fields from model output, dropping values
// outside the closed enumerations.
func (c *Compiler) merge(q *StructuredQuery, out *compiledOutput) {
	if q.SearchMethod == "" {
		switch SearchMethod(out.SearchMethod) {
		case SearchExact, SearchRelevant:
			q.SearchMethod = SearchMethod(out.SearchMethod)
		case "":
		default:
			logger.Warn("[Compile] Dropping unknown search method", "value", out.SearchMethod)
		}
	}
	if q.Granularity == "" {
		switch Granularity(out.ReturnGranularity) {
		case GranularityPage, GranularityBlock:
			q.Granularity = Granularity(out.ReturnGranularity)
		case "":
		default:
			logger.Warn("[Compile] Dropping unknown granularity", "value", out.ReturnGranularity)
		}
	}
	if len(q.Concepts) == 0 {
		q.Concepts = out.Concepts
	}
	if len(q.Participants) == 0 {
		for _, p := range out.Participants {
			if p.Name == "" {
				continue
			}
			q.Participants = append(q.Participants, Participant{
				Name: p.Name,
				Role: model.ParseRole(p.Role),
			})
		}
	}
	if q.Time == nil {
		if t := parseTimeFilter(out.StartDay, out.EndDay); t != nil {
			q.Time = t
		}
	}
	if q.Limit == 0 && out.Limit > 0 {
		q.Limit = out.Limit
	}
	if len(q.PageTypes) == 0 {
		for _, raw := range out.PageTypes {
			t, err := model.ParsePageType(raw)
			if err != nil {
				logger.Warn("[Compile] Dropping unknown page type", "value", raw)
				continue
			}
			q.PageTypes = append(q.PageTypes, t)
		}
	}
	if len(q.BlockLabels) == 0 {
		for _, raw := range out.BlockLabels {
			l, err := model.ParseBlockLabel(raw)
			if err != nil {
				logger.Warn("[Compile] Dropping unknown block label", "value", raw)
				continue
			}
			q.BlockLabels = append(q.BlockLabels, l)
		}
	}
}

// parseTimeFilter converts inclusive day bounds into an epoch range. The
// end day extends to the last second of that day.
func parseTimeFilter(startDay, endDay string) *TimeFilter {
	var t TimeFilter
	if startDay != "" {
		parsed, err := time.ParseInLocation("2006-01-02", startDay, time.UTC)
		if err != nil {
			logger.Warn("[Compile] Dropping unparsable start day", "value", startDay)
		} else {
			t.Start = parsed.Unix()
		}
	}
	if endDay != "" {
		parsed, err := time.ParseInLocation("2006-01-02", endDay, time.UTC)
		if err != nil {
			logger.Warn("[Compile] Dropping unparsable end day", "value", endDay)
		} else {
			t.End = parsed.AddDate(0, 0, 1).Unix() - 1
		}
	}
	if t.Start == 0 && t.End == 0 {
		return nil
	}
	return &t
}
