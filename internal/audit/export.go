package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"time"
)

// WriteCSV renders audit rows as CSV with a header row.
func WriteCSV(rows []Log) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "actor", "action", "entity", "entity_id", "old_value", "new_value", "ip_address", "user_agent"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		actor := ""
		if row.ActorID != nil {
			actor = row.ActorID.String()
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			actor,
			row.Action,
			row.Entity,
			row.EntityID,
			compactJSON(row.OldValue),
			compactJSON(row.NewValue),
			row.IPAddress,
			row.UserAgent,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compactJSON(v map[string]any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
