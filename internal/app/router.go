package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/198cad/orcish-dashboard/internal/acl"
	audithttp "github.com/198cad/orcish-dashboard/internal/audit/http"
	"github.com/198cad/orcish-dashboard/internal/auth"
	"github.com/198cad/orcish-dashboard/internal/docver"
	"github.com/198cad/orcish-dashboard/internal/observability"
	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/roles"
	"github.com/198cad/orcish-dashboard/internal/shared"
	"github.com/198cad/orcish-dashboard/internal/users"
	"github.com/198cad/orcish-dashboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	RBACMiddleware rbac.Middleware

	AuthHandler  *auth.Handler
	UsersHandler *users.Handler
	RolesHandler *roles.Handler
	RBACHandler  *rbac.Handler
	ACLHandler   *acl.Handler
	AuditHandler *audithttp.Handler
	DocHandler   *docver.Handler
	JobHandler   *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
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

	r.Route("/api", func(r chi.Router) {
		if params.UsersHandler != nil {
			r.Route("/users", func(r chi.Router) {
				params.UsersHandler.MountRoutes(r)
				if params.RBACHandler != nil {
					params.RBACHandler.MountUserRoutes(r)
				}
			})
		}
		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				params.RolesHandler.MountRoutes(r)
				if params.RBACHandler != nil {
					params.RBACHandler.MountRoleRoutes(r)
				}
			})
		}
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.ACLHandler != nil {
			params.ACLHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r, params.RBACMiddleware)
		}
		if params.DocHandler != nil {
			params.DocHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
