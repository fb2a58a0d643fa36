package rbac

import (
	"net/http"
	"strings"

	"log/slog"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/shared"
)

// DenialCounter counts rejected authorization checks per permission.
type DenialCounter interface {
	CountDenial(permission string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers. Any internal
// error during a check fails closed: the request is rejected as forbidden.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Denials  DenialCounter
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.grantedPermissions(r)
			if ok && hasAnyPermission(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.countDenials(normalized)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, ok := m.grantedPermissions(r)
			if ok && hasAllPermissions(granted, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.countDenials(normalized)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func (m Middleware) countDenials(perms []string) {
	if m.Denials == nil {
		return
	}
	for _, p := range perms {
		m.Denials.CountDenial(p)
	}
}

func (m Middleware) grantedPermissions(r *http.Request) ([]string, bool) {
	userID, ok := m.currentUserID(r)
	if !ok {
		return nil, false
	}
	granted, err := m.Resolver.EffectivePermissions(r.Context(), userID, nil)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac resolve permissions", slog.Any("error", err))
		}
		return nil, false
	}
	return granted, true
}

func (m Middleware) currentUserID(r *http.Request) (uuid.UUID, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return uuid.Nil, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return uuid.Nil, false
	}
	return id, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
