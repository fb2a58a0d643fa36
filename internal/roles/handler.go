package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/auth"
	"github.com/198cad/orcish-dashboard/internal/platform/httpx"
	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Handler manages role hierarchy endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/ancestors", h.ancestors)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesEdit))
		r.Post("/", h.create)
		r.Post("/{id}/reparent", h.reparent)
	})
}

type roleResponse struct {
	ID          string  `json:"role_id"`
	Name        string  `json:"role_name"`
	Description string  `json:"description,omitempty"`
	ParentID    *string `json:"parent_role_id,omitempty"`
}

func toResponse(role Role) roleResponse {
	resp := roleResponse{
		ID:          role.ID.String(),
		Name:        role.Name,
		Description: role.Description,
	}
	if role.ParentID != nil {
		parent := role.ParentID.String()
		resp.ParentID = &parent
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(all))
	for _, role := range all {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) ancestors(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	chain, err := h.service.AncestorsOf(r.Context(), id)
	if err != nil {
		h.logger.Error("role ancestors", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]string, len(chain))
	for i, ancestorID := range chain {
		out[i] = ancestorID.String()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ancestors": out})
}

type createRoleRequest struct {
	Name        string  `json:"role_name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_role_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	parentID, ok := parseOptionalID(req.ParentID)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid parent role id")
		return
	}
	role, err := h.service.Create(r.Context(), req.Name, req.Description, parentID, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("create role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

type reparentRequest struct {
	ParentID *string `json:"parent_role_id"`
}

func (h *Handler) reparent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	var req reparentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	parentID, ok := parseOptionalID(req.ParentID)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid parent role id")
		return
	}
	role, err := h.service.Reparent(r.Context(), id, parentID, auth.ActorID(r.Context()))
	if err != nil {
		h.logger.Error("reparent role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
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
