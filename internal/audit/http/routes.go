package audithttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline and export endpoints. Export
// routes are rate limited per session user to keep large CSV renders from
// starving the pool.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(guard.RequireAny(shared.PermAuditView))
		gr.Get("/audit", h.handleTimeline)
		gr.Group(func(er chi.Router) {
			er.Use(limiter)
			er.Get("/audit/export.csv", h.handleExport)
			er.Post("/audit/export", h.handleAsyncExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := sessionUser(r); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func sessionUser(r *http.Request) string {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return ""
	}
	return strings.TrimSpace(sess.User())
}
