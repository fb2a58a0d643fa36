package acl

import (
	"time"

	"github.com/google/uuid"
)

// Grant scopes, stored in the applies_to column.
const (
	// ScopeRow limits the entry to the named object row.
	ScopeRow = "row"
	// ScopeCascade extends the entry to descendants of the named object, as
	// defined by the object type's owning domain.
	ScopeCascade = "cascade"
)

// ObjectType is a registered object type name grants can reference.
type ObjectType struct {
	ID          uuid.UUID
	Name        string
	Description string
}

// ObjectPermission is one access control entry: a permission granted on a
// single object to exactly one of a user or a role. Revoked entries are kept
// forever; is_active and revoked_at exclude them from resolution.
type ObjectPermission struct {
	ID           uuid.UUID
	UserID       *uuid.UUID
	RoleID       *uuid.UUID
	ObjectTypeID uuid.UUID
	ObjectType   string
	ObjectID     string
	PermissionID uuid.UUID
	GrantedAt    time.Time
	GrantedBy    *uuid.UUID
	RevokedAt    *time.Time
	IsActive     bool
	AppliesTo    string
}

// Revoked reports whether the entry is excluded from resolution.
func (p ObjectPermission) Revoked() bool {
	return !p.IsActive || p.RevokedAt != nil
}

// Snapshot renders the full row as an audit payload.
func (p ObjectPermission) Snapshot() map[string]any {
	snap := map[string]any{
		"object_permission_id": p.ID.String(),
		"object_type":          p.ObjectType,
		"object_id":            p.ObjectID,
		"permission_id":        p.PermissionID.String(),
		"granted_at":           p.GrantedAt.UTC().Format(time.RFC3339),
		"is_active":            p.IsActive,
		"applies_to":           p.AppliesTo,
	}
	if p.UserID != nil {
		snap["user_id"] = p.UserID.String()
	}
	if p.RoleID != nil {
		snap["role_id"] = p.RoleID.String()
	}
	if p.GrantedBy != nil {
		snap["granted_by"] = p.GrantedBy.String()
	}
	if p.RevokedAt != nil {
		snap["revoked_at"] = p.RevokedAt.UTC().Format(time.RFC3339)
	}
	return snap
}
