package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Permission represents an atomic capability from the catalog.
type Permission struct {
	ID          uuid.UUID
	Name        string
	Description string
}

// Assignment ties a permission to a role.
type Assignment struct {
	RoleID       uuid.UUID
	PermissionID uuid.UUID
	AssignedAt   time.Time
	AssignedBy   *uuid.UUID
}

// UserRole links a user to a role with provenance.
type UserRole struct {
	UserID     uuid.UUID
	RoleID     uuid.UUID
	AssignedAt time.Time
	AssignedBy *uuid.UUID
}

// ObjectRef identifies one object instance for object-scoped resolution.
type ObjectRef struct {
	Type string
	ID   string
}

// Grant scopes, matching the applies_to column.
const (
	ScopeRow     = "row"
	ScopeCascade = "cascade"
)

// ObjectGrant is the slice of an access control entry the resolver needs.
type ObjectGrant struct {
	ObjectID   string
	Permission string
	AppliesTo  string
}
