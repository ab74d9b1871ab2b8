package routes

import (
	"errors"
	"net/http"

	"github.com/elattma/mimo-core-sub000/internal/server/middleware"
	"github.com/elattma/mimo-core-sub000/internal/util"
	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/minify"
	"github.com/elattma/mimo-core-sub000/pkg/model"
	"github.com/elattma/mimo-core-sub000/pkg/query"
	"github.com/elattma/mimo-core-sub000/pkg/retrieve"

	"github.com/labstack/echo/v4"
)

// QueryFilters are the caller's explicit constraints. They take precedence
// over anything the compiler derives from the request text.
type QueryFilters struct {
	SearchMethod string   `json:"search_method,omitempty"`
	Granularity  string   `json:"granularity,omitempty"`
	Participants []string `json:"participants,omitempty"`
	PageTypes    []string `json:"page_types,omitempty"`
	BlockLabels  []string `json:"block_labels,omitempty"`
	Connections  []string `json:"connections,omitempty"`
	StartTime    int64    `json:"start_time,omitempty"`
	EndTime      int64    `json:"end_time,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

type querySource struct {
	Connection string `json:"connection"`
	PageID     string `json:"pageId"`
}

type queryResult struct {
	Text   string      `json:"text"`
	Score  float32     `json:"score"`
	Source querySource `json:"source"`
}

type queryResponse struct {
	Message    string        `json:"message"`
	Results    []queryResult `json:"results,omitempty"`
	Pagination *string       `json:"pagination"`
}

// QueryHandler runs a retrieval: compile the request, fetch candidates,
// minify to the token budget, and serialize. Errors surface as short
// stable categories; store errors never leak across the API boundary.
func QueryHandler(c echo.Context) error {
	type queryBody struct {
		Library     string        `json:"library" validate:"required"`
		Request     string        `json:"request" validate:"required"`
		TokenBudget int           `json:"token_budget" validate:"required,gt=0"`
		Filters     *QueryFilters `json:"filters,omitempty"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "invalid_request"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "invalid_request"})
	}

	explicit, err := explicitQuery(data.Filters)
	if err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{Message: "invalid_request"})
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	compiler := query.NewCompiler(query.NewCompilerParams{AI: app.AiClient})
	q := compiler.Compile(ctx, data.Request, explicit)

	engine := retrieve.NewEngine(retrieve.NewEngineParams{
		AI:      app.AiClient,
		Graph:   app.Graph,
		Vector:  app.Vector,
		Library: data.Library,
	})
	results, err := engine.Fetch(ctx, data.Request, q)
	if err != nil {
		logger.Error("[Server] Retrieval failed", "library", data.Library, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{Message: "retrieval_failed"})
	}

	blocks := make([]*model.Block, 0, len(results))
	scores := make(map[string]float32, len(results))
	sources := make(map[string]querySource, len(results))
	for _, r := range results {
		blocks = append(blocks, r.Block)
		scores[r.Block.ID] = r.Score
		sources[r.Block.ID] = querySource{Connection: r.Connection, PageID: r.PageID}
	}

	minifier := minify.NewMinifier(minify.NewMinifierParams{
		AI:       app.AiClient,
		Distance: minify.Distance(util.GetEnvString("MINIFY_DISTANCE", string(minify.DistanceEuclidean))),
	})
	minified, err := minifier.Minify(ctx, data.Request, blocks, data.TokenBudget)
	if err != nil {
		if errors.Is(err, minify.ErrContentTooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, queryResponse{Message: "content_too_large"})
		}
		logger.Error("[Server] Minify failed", "library", data.Library, "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{Message: "retrieval_failed"})
	}

	out := make([]queryResult, 0, len(minified))
	for _, b := range minified {
		out = append(out, queryResult{
			Text:   b.ContentText(),
			Score:  scores[b.ID],
			Source: sources[b.ID],
		})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message: "ok",
		Results: out,
		// Pagination across retrieval calls is not implemented; the token
		// is always null.
		Pagination: nil,
	})
}

// explicitQuery converts caller filters into a StructuredQuery. Unknown
// enum values here are a caller error, unlike compiler output which only
// drops them.
func explicitQuery(f *QueryFilters) (*query.StructuredQuery, error) {
	if f == nil {
		return nil, nil
	}

	q := &query.StructuredQuery{
		Connections: f.Connections,
		Limit:       f.Limit,
	}

	switch query.SearchMethod(f.SearchMethod) {
	case "", query.SearchExact, query.SearchRelevant:
		q.SearchMethod = query.SearchMethod(f.SearchMethod)
	default:
		return nil, errors.New("unknown search method")
	}
	switch query.Granularity(f.Granularity) {
	case "", query.GranularityPage, query.GranularityBlock:
		q.Granularity = query.Granularity(f.Granularity)
	default:
		return nil, errors.New("unknown granularity")
	}
	for _, p := range f.Participants {
		q.Participants = append(q.Participants, query.Participant{Name: p, Role: model.RoleUnknown})
	}
	for _, raw := range f.PageTypes {
		t, err := model.ParsePageType(raw)
		if err != nil {
			return nil, err
		}
		q.PageTypes = append(q.PageTypes, t)
	}
	for _, raw := range f.BlockLabels {
		l, err := model.ParseBlockLabel(raw)
		if err != nil {
			return nil, err
		}
		q.BlockLabels = append(q.BlockLabels, l)
	}
	if f.StartTime > 0 || f.EndTime > 0 {
		q.Time = &query.TimeFilter{Start: f.StartTime, End: f.EndTime}
	}
	return q, nil
}
