package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"crewboard/internal/config"
	"crewboard/internal/engine"
	"crewboard/internal/engine/auth"
	"crewboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"employee not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Crewboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
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
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Crewboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTenants(group, cfg.Engine)
	registerSummary(group, cfg.Engine)
	registerRoster(group, cfg.Engine)
	registerEmployees(group, cfg.Engine)
	registerRules(group, cfg.Engine)
	registerOverrides(group, cfg.Engine)
	registerStatuses(group, cfg.Engine)
	registerAnnouncements(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fe.Role})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "duplicate") || strings.Contains(lowered, "already exists") || strings.Contains(lowered, "unique"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "missing"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "must"),
		strings.Contains(lowered, "out of range"),
		strings.Contains(lowered, "in the past"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
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
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requireMember(ctx context.Context, e engine.Engine, tenantID string) (string, error) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return "", authErr
	}
	svc := auth.Service{DB: e.DB}
	if err := svc.RequireMember(ctx, tenantID, principal.ActorID); err != nil {
		return "", err
	}
	return principal.ActorID, nil
}

func requireAdmin(ctx context.Context, e engine.Engine, tenantID string) (string, error) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return "", authErr
	}
	svc := auth.Service{DB: e.DB}
	if err := svc.RequireAdmin(ctx, tenantID, principal.ActorID); err != nil {
		return "", err
	}
	return principal.ActorID, nil
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
			applyAuthSecurity(oas, basePath)
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
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
    <title>Crewboard API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerTenants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create tenant",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTenantRequest `json:"body"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		name := ""
		if input.Body.CompanyName != nil {
			name = *input.Body.CompanyName
		}
		t, err := e.InitTenant(ctx, input.Body.ID, name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TenantResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListTenants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TenantResponse, 0, len(items))
		for _, t := range items {
			res = append(res, tenantResponse(t))
		}
		return &struct {
			Body []TenantResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Get tenant",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-tenant",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Update tenant",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		Body     UpdateTenantRequest `json:"body"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, err := requireAdmin(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.UpdateTenant(ctx, input.TenantID, input.Body.CompanyName); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-tenant",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Delete tenant",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct{}, error) {
		if _, err := requireAdmin(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteTenant(ctx, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-config",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/config",
		Summary:     "Get tenant config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body TenantConfigResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		cfg, err := e.Repo.GetTenantConfig(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-tenant-config",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/config",
		Summary:     "Replace tenant config",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string        `path:"tenant_id"`
		Body     config.Config `json:"body"`
	}) (*struct {
		Body TenantConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		cfg := input.Body
		cfg.Tenant.ID = input.TenantID
		if err := cfg.Validate(); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.ImportConfig(ctx, input.TenantID, &cfg, actorID); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetTenantConfig(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantConfigResponse `json:"body"`
		}{Body: configResponse(stored)}, nil
	})
}

func registerSummary(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "board-summary",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/summary",
		Summary:     "Board summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body BoardSummaryResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountEmployeesByStatus(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		return &struct {
			Body BoardSummaryResponse `json:"body"`
		}{Body: BoardSummaryResponse{
			TenantID:     t.ID,
			CompanyName:  t.CompanyName,
			StatusCounts: counts,
			Employees:    total,
		}}, nil
	})
}

func registerRoster(api huma.API, e engine.Engine) {
	// GET roster runs the resolver passes before returning; the /current
	// variant reselects only, for change-feed consumers.
	huma.Register(api, huma.Operation{
		OperationID: "resolve-roster",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/roster",
		Summary:     "Resolve and return roster",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetTenant(ctx, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ResolveRoster(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: nonNilSlice(mapEmployees(items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-roster",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/roster/current",
		Summary:     "Return roster without resolving",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetTenant(ctx, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Roster(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: nonNilSlice(mapEmployees(items))}, nil
	})
}

func registerEmployees(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-employee",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/employees",
		Summary:       "Create employee",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                `path:"tenant_id"`
		Body     CreateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.DisplayName == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "display_name is required", nil)
		}
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		opts := engine.EmployeeCreateOptions{
			TenantID:    input.TenantID,
			DisplayName: input.Body.DisplayName,
			Email:       stringOrEmpty(input.Body.Email),
			Phone:       stringOrEmpty(input.Body.Phone),
			Status:      stringOrEmpty(input.Body.Status),
			AvatarURL:   stringOrEmpty(input.Body.AvatarURL),
			Recurring:   input.Body.Recurring,
			ActorID:     actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		emp, err := e.CreateEmployee(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/employees",
		Summary:     "List employees",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []EmployeeResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListEmployees(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EmployeeResponse `json:"body"`
		}{Body: nonNilSlice(mapEmployees(items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-employee",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/employees/{id}",
		Summary:     "Get employee",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		emp, err := e.Repo.GetEmployee(ctx, input.TenantID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-employee",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/employees/{id}",
		Summary:     "Update employee",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                `path:"tenant_id"`
		ID       string                `path:"id"`
		Body     UpdateEmployeeRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, err := requireMember(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		bodyMap := rawBodyMap(ctx)
		opts := engine.EmployeeUpdateOptions{
			TenantID:    input.TenantID,
			ID:          input.ID,
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
			Phone:       input.Body.Phone,
			Status:      input.Body.Status,
			Recurring:   input.Body.Recurring,
			ActorID:     actorID,
		}
		if raw, ok := bodyMap["avatar_url"]; ok {
			if isNullRaw(raw) {
				opts.ClearAvatar = true
			} else {
				opts.AvatarURL = input.Body.AvatarURL
			}
		}
		emp, err := e.UpdateEmployee(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-employee-status",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/employees/{id}/status",
		Summary:     "Set employee status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string           `path:"tenant_id"`
		ID       string           `path:"id"`
		Body     SetStatusRequest `json:"body"`
	}) (*struct {
		Body EmployeeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, err := requireMember(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		emp, err := e.SetEmployeeStatus(ctx, input.TenantID, input.ID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeResponse `json:"body"`
		}{Body: employeeResponse(emp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-employee",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/employees/{id}",
		Summary:     "Delete employee",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct{}, error) {
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteEmployee(ctx, input.TenantID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-rule",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/rules",
		Summary:     "Set recurring rule",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string         `path:"tenant_id"`
		Body     SetRuleRequest `json:"body"`
	}) (*struct {
		Body RuleResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.EmployeeID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "employee_id is required", nil)
		}
		actorID, err := requireMember(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		rule, err := e.SetRecurringRule(ctx, input.TenantID, input.Body.EmployeeID, input.Body.Weekday, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RuleResponse `json:"body"`
		}{Body: ruleResponse(rule)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/rules",
		Summary:     "List recurring rules",
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		EmployeeID string `query:"employee_id"`
	}) (*struct {
		Body []RuleResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListRecurringRules(ctx, input.TenantID, input.EmployeeID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]RuleResponse, 0, len(items))
		for _, r := range items {
			res = append(res, ruleResponse(r))
		}
		return &struct {
			Body []RuleResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-rule",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/rules/{id}",
		Summary:     "Delete recurring rule",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct{}, error) {
		actorID, err := requireMember(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveRecurringRule(ctx, input.TenantID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerOverrides(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-override",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/overrides",
		Summary:       "Schedule status override",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string             `path:"tenant_id"`
		Body     AddOverrideRequest `json:"body"`
	}) (*struct {
		Body OverrideResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.EmployeeID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "employee_id is required", nil)
		}
		actorID, err := requireMember(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		o, err := e.AddOverride(ctx, input.TenantID, input.Body.EmployeeID, input.Body.Date, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OverrideResponse `json:"body"`
		}{Body: overrideResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overrides",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/overrides",
		Summary:     "List scheduled overrides",
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		EmployeeID string `query:"employee_id"`
	}) (*struct {
		Body []OverrideResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListScheduledOverrides(ctx, input.TenantID, input.EmployeeID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OverrideResponse, 0, len(items))
		for _, o := range items {
			res = append(res, overrideResponse(o))
		}
		return &struct {
			Body []OverrideResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-override",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/overrides/{id}",
		Summary:     "Delete scheduled override",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct{}, error) {
		actorID, err := requireMember(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveOverride(ctx, input.TenantID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStatuses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/statuses",
		Summary:     "List predefined statuses",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []StatusResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListPredefinedStatuses(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StatusResponse, 0, len(items))
		for _, s := range items {
			res = append(res, statusResponse(s))
		}
		return &struct {
			Body []StatusResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-statuses",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/statuses",
		Summary:     "Replace predefined statuses",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string             `path:"tenant_id"`
		Body     SetStatusesRequest `json:"body"`
	}) (*struct {
		Body []StatusResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.SetPredefinedStatuses(ctx, input.TenantID, input.Body.Labels, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StatusResponse, 0, len(items))
		for _, s := range items {
			res = append(res, statusResponse(s))
		}
		return &struct {
			Body []StatusResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerAnnouncements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-announcement",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/announcements",
		Summary:       "Create announcement",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                    `path:"tenant_id"`
		Body     CreateAnnouncementRequest `json:"body"`
	}) (*struct {
		Body AnnouncementResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.CreateAnnouncement(ctx, input.TenantID, input.Body.Message, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnnouncementResponse `json:"body"`
		}{Body: announcementResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-announcements",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/announcements",
		Summary:     "List announcements",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []AnnouncementResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListAnnouncements(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]AnnouncementResponse, 0, len(items))
		for _, a := range items {
			res = append(res, announcementResponse(a))
		}
		return &struct {
			Body []AnnouncementResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-announcement",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/announcements/{id}",
		Summary:     "Update announcement",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                    `path:"tenant_id"`
		ID       string                    `path:"id"`
		Body     UpdateAnnouncementRequest `json:"body"`
	}) (*struct {
		Body AnnouncementResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.UpdateAnnouncement(ctx, input.TenantID, input.ID, input.Body.Message, input.Body.Position, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnnouncementResponse `json:"body"`
		}{Body: announcementResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-announcement",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/announcements/{id}",
		Summary:     "Delete announcement",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct{}, error) {
		actorID, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteAnnouncement(ctx, input.TenantID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/members",
		Summary:     "List members",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMembers(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]MemberResponse, 0, len(items))
		for _, m := range items {
			res = append(res, memberResponse(m))
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-member",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/members/assign",
		Summary:     "Assign member role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		Body     MemberChangeRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		grantedBy, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		role := input.Body.Role
		if role == "" {
			role = repo.RoleMember
		}
		if err := e.AddMember(ctx, input.TenantID, input.Body.ActorID, role, grantedBy); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/members/remove",
		Summary:     "Remove member",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string              `path:"tenant_id"`
		Body     MemberChangeRequest `json:"body"`
	}) (*struct{}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		removedBy, err := requireAdmin(ctx, e, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveMember(ctx, input.TenantID, input.Body.ActorID, removedBy); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"tenant,employee,rule,override,announcement,member"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requireMember(ctx, e, input.TenantID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.TenantID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			// next page is everything older than the last item returned
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		svc := auth.Service{DB: e.DB}
		tenants, err := svc.ActorTenants(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Tenants: nonNilSlice(tenants),
			Source:  principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	if inner, ok := outer["body"]; ok {
		var innerMap map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerMap); err == nil {
			return innerMap
		}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
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

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
