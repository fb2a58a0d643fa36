package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/198cad/orcish-dashboard/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditExport renders a filtered audit log export to the spool dir.
	TaskAuditExport = "audit:export"
)

// AuditExportPayload describes one requested audit export.
type AuditExportPayload struct {
	Actor       *uuid.UUID `json:"actor,omitempty"`
	Action      string     `json:"action,omitempty"`
	Entity      string     `json:"entity,omitempty"`
	EntityID    string     `json:"entity_id,omitempty"`
	From        time.Time  `json:"from"`
	To          time.Time  `json:"to"`
	RequestedBy string     `json:"requested_by,omitempty"`
}

// NewAuditExportTask constructs an Asynq task.
func NewAuditExportTask(payload AuditExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditExport, data), nil
}

// AuditExporter renders audit rows for a filter window.
type AuditExporter interface {
	Export(ctx context.Context, filters audit.Filters) ([]audit.Log, error)
}

// NewAuditExportHandler builds the handler that writes CSV exports to
// spoolDir. Files are named audit-<unix>.csv so repeated exports never
// clobber each other. metrics may be nil.
func NewAuditExportHandler(service AuditExporter, spoolDir string, logger *slog.Logger, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditExportPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskAuditExport)
		rows, err := service.Export(ctx, audit.Filters{
			Actor:    payload.Actor,
			Action:   payload.Action,
			Entity:   payload.Entity,
			EntityID: payload.EntityID,
			From:     payload.From,
			To:       payload.To,
		})
		if err != nil {
			return tracker.End(fmt.Errorf("jobs: export audit rows: %w", err))
		}
		csvBytes, err := audit.WriteCSV(rows)
		if err != nil {
			return tracker.End(fmt.Errorf("jobs: encode csv: %w", err))
		}
		if err := os.MkdirAll(spoolDir, 0o755); err != nil {
			return tracker.End(fmt.Errorf("jobs: create spool dir: %w", err))
		}
		name := filepath.Join(spoolDir, fmt.Sprintf("audit-%d.csv", time.Now().UTC().Unix()))
		if err := os.WriteFile(name, csvBytes, 0o644); err != nil {
			return tracker.End(fmt.Errorf("jobs: write export: %w", err))
		}
		if logger != nil {
			logger.Info("audit export written",
				slog.String("file", name),
				slog.Int("rows", len(rows)),
				slog.String("requested_by", payload.RequestedBy),
			)
		}
		return tracker.End(nil)
	}
}
