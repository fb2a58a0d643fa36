package roles

import (
	"time"

	"github.com/google/uuid"
)

// Role is a node in the role hierarchy. A nil ParentID marks a root; multiple
// roots are allowed, cycles are not.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	ParentID    *uuid.UUID
	CreatedAt   time.Time
	CreatedBy   *uuid.UUID
	UpdatedAt   time.Time
	UpdatedBy   *uuid.UUID
}

// Snapshot renders the role as an audit payload.
func (r Role) Snapshot() map[string]any {
	snap := map[string]any{
		"role_id":     r.ID.String(),
		"role_name":   r.Name,
		"description": r.Description,
	}
	if r.ParentID != nil {
		snap["parent_role_id"] = r.ParentID.String()
	}
	return snap
}
