package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action types recorded for privileged mutations.
const (
	ActionCreate     = "CREATE"
	ActionUpdate     = "UPDATE"
	ActionDeactivate = "DEACTIVATE"
	ActionAssignRole = "ASSIGN_ROLE"
	ActionRemoveRole = "REMOVE_ROLE"
	ActionReparent   = "REPARENT"
	ActionSetPerms   = "SET_PERMISSIONS"
	ActionGrant      = "GRANT"
	ActionRevoke     = "REVOKE"
	ActionSnapshot   = "SNAPSHOT"
	ActionLogin      = "LOGIN"
	ActionLogout     = "LOGOUT"
)

// Log is one append-only audit record. Rows are never updated or deleted.
type Log struct {
	ID        int64
	ActorID   *uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	OldValue  map[string]any
	NewValue  map[string]any
	IPAddress string
	UserAgent string
	At        time.Time
}

// Filters narrows audit queries. Zero values mean "no filter".
type Filters struct {
	Actor    *uuid.UUID
	Action   string
	Entity   string
	EntityID string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo carries windowed paging metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles query rows with paging information.
type Result struct {
	Rows   []Log
	Paging PagingInfo
}
