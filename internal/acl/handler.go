package acl

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/auth"
	"github.com/198cad/orcish-dashboard/internal/platform/httpx"
	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// PermissionCatalog resolves permission names to catalog ids.
type PermissionCatalog interface {
	Lookup(ctx context.Context, name string) (uuid.UUID, bool, error)
}

// Handler manages object permission endpoints.
type Handler struct {
	logger  *slog.Logger
	engine  *Engine
	catalog PermissionCatalog
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, catalog PermissionCatalog, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, engine: engine, catalog: catalog, rbac: rbac}
}

// MountRoutes registers grant routes on the /api root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermGrantsView))
		r.Get("/objects/{type}/{id}/grants", h.listActive)
		r.Get("/object-types", h.listObjectTypes)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermGrantsEdit))
		r.Post("/objects/{type}/{id}/grants", h.grant)
		r.Post("/grants/{id}/revoke", h.revoke)
		r.Post("/object-types", h.registerObjectType)
	})
}

type grantResponse struct {
	ID           string  `json:"object_permission_id"`
	UserID       *string `json:"user_id,omitempty"`
	RoleID       *string `json:"role_id,omitempty"`
	ObjectType   string  `json:"object_type"`
	ObjectID     string  `json:"object_id"`
	PermissionID string  `json:"permission_id"`
	GrantedAt    string  `json:"granted_at"`
	RevokedAt    *string `json:"revoked_at,omitempty"`
	IsActive     bool    `json:"is_active"`
	AppliesTo    string  `json:"applies_to"`
}

func toGrantResponse(p ObjectPermission) grantResponse {
	resp := grantResponse{
		ID:           p.ID.String(),
		ObjectType:   p.ObjectType,
		ObjectID:     p.ObjectID,
		PermissionID: p.PermissionID.String(),
		GrantedAt:    p.GrantedAt.UTC().Format(time.RFC3339),
		IsActive:     p.IsActive,
		AppliesTo:    p.AppliesTo,
	}
	if p.UserID != nil {
		s := p.UserID.String()
		resp.UserID = &s
	}
	if p.RoleID != nil {
		s := p.RoleID.String()
		resp.RoleID = &s
	}
	if p.RevokedAt != nil {
		s := p.RevokedAt.UTC().Format(time.RFC3339)
		resp.RevokedAt = &s
	}
	return resp
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	grants, err := h.engine.ListActive(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("list active grants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type grantRequest struct {
	UserID       *string `json:"user_id"`
	RoleID       *string `json:"role_id"`
	Permission   string  `json:"permission"`
	PermissionID string  `json:"permission_id"`
	AppliesTo    string  `json:"applies_to"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	permissionID, ok := h.resolvePermission(r.Context(), req)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown permission")
		return
	}
	userID, ok := parseOptionalID(req.UserID)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	roleID, ok := parseOptionalID(req.RoleID)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	grant, err := h.engine.Grant(r.Context(), GrantParams{
		UserID:       userID,
		RoleID:       roleID,
		ObjectType:   chi.URLParam(r, "type"),
		ObjectID:     chi.URLParam(r, "id"),
		PermissionID: permissionID,
		AppliesTo:    req.AppliesTo,
		Actor:        auth.ActorID(r.Context()),
	})
	if err != nil {
		h.logger.Error("grant object permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid grant id")
		return
	}
	if err := h.engine.Revoke(r.Context(), id, auth.ActorID(r.Context())); err != nil {
		h.logger.Error("revoke object permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerObjectTypeRequest struct {
	Name        string `json:"type_name"`
	Description string `json:"description"`
}

func (h *Handler) registerObjectType(w http.ResponseWriter, r *http.Request) {
	var req registerObjectTypeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if req.Name == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "type_name required")
		return
	}
	ot, err := h.engine.RegisterObjectType(r.Context(), req.Name, req.Description, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("register object type", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"object_type_id": ot.ID.String(),
		"type_name":      ot.Name,
		"description":    ot.Description,
	})
}

func (h *Handler) listObjectTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.engine.ListObjectTypes(r.Context())
	if err != nil {
		h.logger.Error("list object types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(types))
	for _, ot := range types {
		out = append(out, map[string]any{
			"object_type_id": ot.ID.String(),
			"type_name":      ot.Name,
			"description":    ot.Description,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

// resolvePermission accepts a catalog permission name or, failing that, a raw
// permission id. Name lookups go through the cached catalog.
func (h *Handler) resolvePermission(ctx context.Context, req grantRequest) (uuid.UUID, bool) {
	if req.Permission != "" {
		id, ok, err := h.catalog.Lookup(ctx, req.Permission)
		if err != nil {
			h.logger.Error("resolve permission name", slog.Any("error", err))
			return uuid.Nil, false
		}
		return id, ok
	}
	id, err := uuid.Parse(req.PermissionID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalID(raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, false
	}
	return &id, true
}
