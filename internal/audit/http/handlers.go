package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/httpx"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for audit timeline data.
type TimelineService interface {
	Query(ctx context.Context, filters audit.Filters) (audit.Result, error)
	Export(ctx context.Context, filters audit.Filters) ([]audit.Log, error)
}

// Enqueuer schedules background export jobs.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, filters audit.Filters, requestedBy string) (string, error)
}

// Handler serves the audit timeline and CSV export endpoints.
type Handler struct {
	logger   *slog.Logger
	service  TimelineService
	enqueuer Enqueuer
	now      func() time.Time
}

// NewHandler builds an audit handler. enqueuer may be nil when no worker is
// wired; the async export endpoint then responds 501.
func NewHandler(logger *slog.Logger, service TimelineService, enqueuer Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

type logResponse struct {
	ID        int64          `json:"log_id"`
	ActorID   *string        `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	OldValue  map[string]any `json:"old_value,omitempty"`
	NewValue  map[string]any `json:"new_value,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	At        string         `json:"created_at"`
}

func toLogResponse(l audit.Log) logResponse {
	resp := logResponse{
		ID:        l.ID,
		Action:    l.Action,
		Entity:    l.Entity,
		EntityID:  l.EntityID,
		OldValue:  l.OldValue,
		NewValue:  l.NewValue,
		IPAddress: l.IPAddress,
		UserAgent: l.UserAgent,
		At:        l.At.UTC().Format(time.RFC3339),
	}
	if l.ActorID != nil {
		s := l.ActorID.String()
		resp.ActorID = &s
	}
	return resp
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]logResponse, 0, len(result.Rows))
	for _, l := range result.Rows {
		rows = append(rows, toLogResponse(l))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows": rows,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-log.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) handleAsyncExport(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "background export not configured")
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	taskID, err := h.enqueuer.EnqueueExport(r.Context(), filters, sessionUser(r))
	if err != nil {
		h.logger.Error("enqueue audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *Handler) parseFilters(r *http.Request) (audit.Filters, error) {
	now := h.now().UTC()
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if toStr == "" {
		toStr = now.Format("2006-01-02")
	}
	toTime, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return audit.Filters{}, filterError("to")
	}
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format("2006-01-02")
	}
	fromTime, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return audit.Filters{}, filterError("from")
	}
	if fromTime.After(toTime) {
		return audit.Filters{}, filterError("range")
	}
	if toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.Filters{}, filterError("range")
	}

	filters := audit.Filters{
		From:     fromTime,
		To:       toTime.Add(24 * time.Hour),
		Action:   strings.TrimSpace(r.URL.Query().Get("action")),
		Entity:   strings.TrimSpace(r.URL.Query().Get("entity")),
		EntityID: strings.TrimSpace(r.URL.Query().Get("entity_id")),
		Page:     1,
	}
	if v := strings.TrimSpace(r.URL.Query().Get("actor")); v != "" {
		actor, err := uuid.Parse(v)
		if err != nil {
			return audit.Filters{}, filterError("actor")
		}
		filters.Actor = &actor
	}
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, filterError("page")
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, filterError("page_size")
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

type filterError string

func (f filterError) Error() string {
	return "invalid filter: " + string(f)
}
