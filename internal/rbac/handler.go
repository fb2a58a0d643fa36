package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/platform/httpx"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Handler manages permission catalog, binding, and resolution endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	resolver *Resolver
	rbac     Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, resolver: resolver, rbac: rbac}
}

// MountRoutes registers the permission catalog routes on the /api root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsView))
		r.Get("/permissions", h.listPermissions)
		r.Get("/permissions/effective", h.effective)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsEdit))
		r.Post("/permissions", h.ensurePermission)
	})
}

// MountRoleRoutes registers binding routes inside the /api/roles subrouter.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesEdit))
		r.Put("/{id}/permissions", h.setRolePermissions)
	})
}

// MountUserRoutes registers binding routes inside the /api/users subrouter.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersEdit))
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.removeRole)
	})
}

type permissionResponse struct {
	ID          string `json:"permission_id"`
	Name        string `json:"permission_name"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID.String(), Name: p.Name, Description: p.Description})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type ensurePermissionRequest struct {
	Name        string `json:"permission_name"`
	Description string `json:"description"`
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var req ensurePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), req.Name, req.Description, actorFrom(r))
	if err != nil {
		h.logger.Error("ensure permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID.String(), Name: perm.Name, Description: perm.Description})
}

type setRolePermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req setRolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	ids := make([]uuid.UUID, 0, len(req.PermissionIDs))
	for _, raw := range req.PermissionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid permission id: "+raw)
			return
		}
		ids = append(ids, id)
	}
	if err := h.service.SetRolePermissions(r.Context(), roleID, ids, actorFrom(r)); err != nil {
		h.logger.Error("set role permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, roleID, actorFrom(r)); err != nil {
		h.logger.Error("assign role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID, actorFrom(r)); err != nil {
		h.logger.Error("remove role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	var ref *ObjectRef
	objectType := r.URL.Query().Get("object_type")
	objectID := r.URL.Query().Get("object_id")
	if objectType != "" || objectID != "" {
		if objectType == "" || objectID == "" {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "object_type and object_id must be supplied together")
			return
		}
		ref = &ObjectRef{Type: objectType, ID: objectID}
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), userID, ref)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID.String(), "permissions": perms})
}

func actorFrom(r *http.Request) *uuid.UUID {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil
	}
	id, err := uuid.Parse(sess.User())
	if err != nil {
		return nil
	}
	return &id
}
