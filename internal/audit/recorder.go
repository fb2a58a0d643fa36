package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Entry describes one privileged mutation to be recorded.
type Entry struct {
	ActorID  *uuid.UUID
	Action   string
	Entity   string
	EntityID string
	OldValue map[string]any
	NewValue map[string]any
	Meta     shared.RequestMeta
	At       time.Time
}

// Recorder appends immutable audit rows. Record takes the caller's Queryer so
// the insert shares the transaction of the mutation it documents: if either
// side fails the whole transaction rolls back.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record persists the entry and returns the new log id.
func (rec *Recorder) Record(ctx context.Context, q db.Queryer, e Entry) (int64, error) {
	if rec == nil {
		return 0, errors.New("audit recorder not initialised")
	}
	if e.Action == "" {
		return 0, errors.New("audit entry requires an action")
	}
	oldJSON, err := marshalValue(e.OldValue)
	if err != nil {
		return 0, err
	}
	newJSON, err := marshalValue(e.NewValue)
	if err != nil {
		return 0, err
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO audit_log (user_id, action_type, table_name, record_id, old_value, new_value, ip_address, user_agent, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING log_id`,
		e.ActorID, e.Action, e.Entity, e.EntityID, oldJSON, newJSON, e.Meta.IPAddress, e.Meta.UserAgent, at,
	).Scan(&id)
	if err != nil {
		return 0, shared.Persistence("audit: record", err)
	}
	return id, nil
}

// marshalValue keeps NULL in the column when no payload was supplied, so
// "nothing captured" and "empty object" stay distinguishable.
func marshalValue(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
