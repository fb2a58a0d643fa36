package docver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/198cad/orcish-dashboard/internal/auth"
	"github.com/198cad/orcish-dashboard/internal/platform/httpx"
	"github.com/198cad/orcish-dashboard/internal/rbac"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

const maxDocumentTypeLen = 50

// Handler exposes document version history over HTTP.
type Handler struct {
	logger    *slog.Logger
	versioner *Versioner
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, versioner *Versioner, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, versioner: versioner, rbac: rbac}
}

// MountRoutes registers version routes on the /api root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/documents/{type}/{id}/versions", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermDocumentsView))
			r.Get("/", h.list)
			r.Get("/{number}", h.get)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermDocumentsEdit))
			r.Post("/", h.snapshot)
		})
	})
}

type versionResponse struct {
	ID            int64          `json:"version_id"`
	DocumentType  string         `json:"document_type"`
	DocumentID    string         `json:"document_id"`
	VersionNumber int64          `json:"version_number"`
	Changes       map[string]any `json:"changes,omitempty"`
	Snapshot      map[string]any `json:"full_document_snapshot,omitempty"`
	ChangedBy     *string        `json:"changed_by,omitempty"`
	ChangedAt     string         `json:"changed_at"`
}

func toVersionResponse(v Version) versionResponse {
	resp := versionResponse{
		ID:            v.ID,
		DocumentType:  v.DocumentType,
		DocumentID:    v.DocumentID,
		VersionNumber: v.VersionNumber,
		Changes:       v.Changes,
		Snapshot:      v.Snapshot,
		ChangedAt:     v.ChangedAt.UTC().Format(time.RFC3339),
	}
	if v.ChangedBy != nil {
		s := v.ChangedBy.String()
		resp.ChangedBy = &s
	}
	return resp
}

func documentRef(r *http.Request) (string, string, bool) {
	docType := strings.TrimSpace(chi.URLParam(r, "type"))
	docID := strings.TrimSpace(chi.URLParam(r, "id"))
	if docType == "" || len(docType) > maxDocumentTypeLen || docID == "" {
		return "", "", false
	}
	return docType, docID, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	docType, docID, ok := documentRef(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document reference")
		return
	}
	versions, err := h.versioner.List(r.Context(), docType, docID)
	if err != nil {
		h.logger.Error("list document versions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, toVersionResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	docType, docID, ok := documentRef(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document reference")
		return
	}
	number, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	if err != nil || number <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid version number")
		return
	}
	version, err := h.versioner.Get(r.Context(), docType, docID, number)
	if err != nil {
		h.logger.Error("get document version", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVersionResponse(version))
}

type snapshotRequest struct {
	Changes  map[string]any `json:"changes"`
	Snapshot map[string]any `json:"full_document_snapshot"`
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	docType, docID, ok := documentRef(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document reference")
		return
	}
	var req snapshotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	number, err := h.versioner.Snapshot(r.Context(), docType, docID, auth.ActorID(r.Context()), req.Changes, req.Snapshot)
	if err != nil {
		h.logger.Error("snapshot document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"document_type":  docType,
		"document_id":    docID,
		"version_number": number,
	})
}
