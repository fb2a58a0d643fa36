package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/platform/httpx"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Verifier exchanges credentials for a user id. Implemented by LocalVerifier
// or by an adapter in front of the external provider.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (uuid.UUID, error)
}

// Auditor records login/logout events.
type Auditor interface {
	Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error)
}

// Handler manages session establishment and teardown.
type Handler struct {
	logger   *slog.Logger
	verifier Verifier
	auditor  Auditor
	q        db.Queryer
	sessions *shared.SessionManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, verifier Verifier, auditor Auditor, q db.Queryer, sessions *shared.SessionManager) *Handler {
	return &Handler{logger: logger, verifier: verifier, auditor: auditor, q: q, sessions: sessions}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	userID, err := h.verifier.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetUser(userID.String())
	if _, err := h.auditor.Record(r.Context(), h.q, audit.Entry{
		ActorID:  &userID,
		Action:   audit.ActionLogin,
		Entity:   "users",
		EntityID: userID.String(),
		Meta:     shared.RequestMetaFromContext(r.Context()),
	}); err != nil {
		h.logger.Error("record login", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID.String()})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if raw := sess.User(); raw != "" {
			if userID, err := uuid.Parse(raw); err == nil {
				if _, err := h.auditor.Record(r.Context(), h.q, audit.Entry{
					ActorID:  &userID,
					Action:   audit.ActionLogout,
					Entity:   "users",
					EntityID: userID.String(),
					Meta:     shared.RequestMetaFromContext(r.Context()),
				}); err != nil {
					h.logger.Error("record logout", slog.Any("error", err))
				}
			}
		}
		h.sessions.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}
