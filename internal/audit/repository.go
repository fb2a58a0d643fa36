package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Repository provides PostgreSQL backed read access to audit_log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const logColumns = `log_id, user_id, action_type, COALESCE(table_name, ''), COALESCE(record_id, ''), old_value, new_value, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at`

// Window returns up to limit rows matching the filters, newest first.
func (r *Repository) Window(ctx context.Context, f Filters, limit, offset int) ([]Log, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+logColumns+`
		FROM audit_log
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2 = '' OR action_type = $2)
		  AND ($3 = '' OR table_name = $3)
		  AND ($4 = '' OR record_id = $4)
		  AND ($5::timestamptz IS NULL OR created_at >= $5)
		  AND ($6::timestamptz IS NULL OR created_at <= $6)
		ORDER BY created_at DESC, log_id DESC
		LIMIT $7 OFFSET $8`,
		f.Actor, f.Action, f.Entity, f.EntityID, nullTime(f.From), nullTime(f.To), limit, offset,
	)
	if err != nil {
		return nil, shared.Persistence("audit: window", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var (
			entry          Log
			oldRaw, newRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.Entity, &entry.EntityID, &oldRaw, &newRaw, &entry.IPAddress, &entry.UserAgent, &entry.At); err != nil {
			return nil, shared.Persistence("audit: scan", err)
		}
		if err := unmarshalValue(oldRaw, &entry.OldValue); err != nil {
			return nil, err
		}
		if err := unmarshalValue(newRaw, &entry.NewValue); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("audit: window rows", err)
	}
	return logs, nil
}

func unmarshalValue(raw []byte, target *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
