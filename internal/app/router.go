package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pharmos-erp/pharmos-erp/internal/access"
	audithttp "github.com/pharmos-erp/pharmos-erp/internal/audit/http"
	"github.com/pharmos-erp/pharmos-erp/internal/auth"
	"github.com/pharmos-erp/pharmos-erp/internal/observability"
	"github.com/pharmos-erp/pharmos-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	GrantsHandler    *access.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	AccessMiddleware access.Middleware
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Pharmos defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Everything below requires a resolved principal.
	r.Group(func(r chi.Router) {
		r.Use(params.AccessMiddleware.Authenticate)
		if params.GrantsHandler != nil {
			r.Route("/api/grants", params.GrantsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/api/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			// Queue introspection is an operator surface, not a tenant one.
			r.Route("/api/jobs", func(r chi.Router) {
				r.Use(access.RequireRole(access.RoleAdmin, access.RoleSuperAdmin))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
