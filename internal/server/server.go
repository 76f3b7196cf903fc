package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"visionline/internal/domain"
	"visionline/internal/engine"
	"visionline/internal/repo"
	"visionline/internal/visionfile"
)

const (
	headerActor  = "X-Actor-Id"
	defaultActor = "api"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"aggregate_validation"`
	Message string         `json:"message" example:"branch vision validation failed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"violations\":[\"branch must contribute to at least one project objective\"]}"`
}

type requestKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Visionline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are reported as 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("Visionline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerMetrics(router, cfg.Engine)
	registerHealth(group)
	registerVision(group, cfg.Engine)
	registerObjectives(group, cfg.Engine)
	registerBranches(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerAudits(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAlignment(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
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

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValueConstruction, domain.CodeRange:
		return http.StatusBadRequest
	case domain.CodeAggregateValidation:
		return http.StatusUnprocessableEntity
	case domain.CodeDuplicateObjective, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeNotFound, domain.CodeReference:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		var details map[string]any
		if len(de.Violations) > 0 {
			details = map[string]any{"violations": de.Violations}
		}
		return newAPIError(statusForCode(de.Code), string(de.Code), de.Message, details)
	}
	if errors.Is(err, visionfile.ErrInvalidDocument) {
		return newAPIError(http.StatusBadRequest, "invalid_document", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "aggregate_validation"
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

func registerMetrics(r chi.Router, e engine.Engine) {
	if e.Metrics == nil {
		return
	}
	r.Handle("/metrics", e.Metrics.Handler())
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
    <title>Visionline API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Send X-Actor-Id to attribute changes; branch and task ids must be path-escaped.
    </p>
  </body>
</html>`, specURL)
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

func requestHeader(ctx context.Context, name string) string {
	if h, ok := ctx.(interface{ Header(string) string }); ok {
		if v := strings.TrimSpace(h.Header(name)); v != "" {
			return v
		}
	}
	if req, ok := ctx.Value(requestKey{}).(*http.Request); ok && req != nil {
		return strings.TrimSpace(req.Header.Get(name))
	}
	return ""
}

// actorFromRequest names who made a change; anonymous callers are "api".
func actorFromRequest(ctx context.Context, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if v := requestHeader(ctx, headerActor); v != "" {
		return v
	}
	return defaultActor
}

// pathID undoes path escaping so ids like feature/login survive routing.
func pathID(raw string) string {
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
