package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"archplan/internal/compose"
	"archplan/internal/domain"
	"archplan/internal/engine"
	"archplan/internal/needs"
	"archplan/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"circular_dependency"`
	Message string         `json:"message" example:"circular dependency detected: a -> b -> a"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"path\":[\"a\",\"b\",\"a\"]}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the archplan API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request; 422 is
			// reserved for compositions that cannot be ordered.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("Archplan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)
	h := handlers{engine: cfg.Engine, logger: logger}

	registerDocs(router, basePath)
	registerHealth(group)
	h.registerBriefings(group)
	h.registerProjects(group)
	h.registerTemplates(group)
	h.registerEvents(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type handlers struct {
	engine engine.Engine
	logger *slog.Logger
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.DebugContext(r.Context(), "http request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func (h handlers) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ce *compose.CompositionError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusUnprocessableEntity, "circular_dependency", err.Error(), map[string]any{"path": ce.Path})
	}
	var de *needs.DetectionError
	if errors.As(err, &de) {
		h.logger.ErrorContext(ctx, "needs detection failed", "op", de.Op, "error", de.Err)
		return newAPIError(http.StatusInternalServerError, "detection_failed", err.Error(), map[string]any{"op": de.Op})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidInput) || errors.Is(err, errBadRequest) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	h.logger.ErrorContext(ctx, "request failed", "error", err)
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components != nil && oas.Components.Schemas != nil {
		oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Archplan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (h handlers) registerBriefings(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-briefing",
		Method:      http.MethodPost,
		Path:        "/briefings/analyze",
		Summary:     "Detect the templates a briefing needs",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body AnalyzeRequest
	}) (*struct {
		Body domain.NeedsAnalysis `json:"body"`
	}, error) {
		b, err := briefingFromBody(input.Body.Briefing)
		if err != nil {
			return nil, h.handleError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		a, err := h.engine.Analyze(ctx, b)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.NeedsAnalysis `json:"body"`
		}{Body: a}, nil
	})
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "compose-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/compose",
		Summary:     "Compose a project from an analysis",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      ComposeRequest
	}) (*struct {
		Body domain.ComposedProject `json:"body"`
	}, error) {
		in := input.Body.Analysis
		rules := h.engine.Config.Needs
		analysis := needs.Summarize(rules, recommendations(in.Primary), recommendations(in.Complementary), recommendations(in.Optional))
		p, err := h.engine.Compose(ctx, input.ProjectID, analysis, input.Body.Options)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body domain.ComposedProject `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "plan-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/plan",
		Summary:     "Analyze a briefing and compose its project",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      PlanRequest
	}) (*struct {
		Body engine.PlanResult `json:"body"`
	}, error) {
		b, err := briefingFromBody(input.Body.Briefing)
		if err != nil {
			return nil, h.handleError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		}
		res, err := h.engine.Plan(ctx, input.ProjectID, b, input.Body.Options)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body engine.PlanResult `json:"body"`
		}{Body: res}, nil
	})
}

func (h handlers) registerTemplates(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List catalog templates",
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
	}) (*struct {
		Body []TemplateSummary `json:"body"`
	}, error) {
		templates, err := h.engine.Templates(ctx)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		out := make([]TemplateSummary, 0, len(templates))
		for _, t := range templates {
			if input.Category != "" && t.Category != input.Category {
				continue
			}
			out = append(out, templateSummary(t))
		}
		return &struct {
			Body []TemplateSummary `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-template-activities",
		Method:      http.MethodGet,
		Path:        "/templates/{template_id}/activities",
		Summary:     "List the raw activities of a template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TemplateID string `path:"template_id"`
	}) (*struct {
		Body templateActivities `json:"body"`
	}, error) {
		if _, err := h.engine.Template(ctx, input.TemplateID); err != nil {
			return nil, h.handleError(ctx, err)
		}
		acts, err := h.engine.TemplateActivities(ctx, input.TemplateID)
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		return &struct {
			Body templateActivities `json:"body"`
		}{Body: templateActivities{TemplateID: input.TemplateID, Items: acts}}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"briefing,composition,catalog"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.engine.ListEvents(ctx, repo.EventFilter{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, h.handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
