package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// BindingStore defines the writes the binding service performs.
type BindingStore interface {
	ListPermissions(ctx context.Context, q db.Queryer) ([]Permission, error)
	UpsertPermission(ctx context.Context, q db.Queryer, name, description string, actor *uuid.UUID) (Permission, error)
	RolePermissionIDs(ctx context.Context, q db.Queryer, roleID uuid.UUID) ([]uuid.UUID, error)
	AttachPermission(ctx context.Context, q db.Queryer, roleID, permissionID uuid.UUID, actor *uuid.UUID) error
	DetachPermission(ctx context.Context, q db.Queryer, roleID, permissionID uuid.UUID) error
	AssignRole(ctx context.Context, q db.Queryer, userID, roleID uuid.UUID, actor *uuid.UUID) error
	RemoveRole(ctx context.Context, q db.Queryer, userID, roleID uuid.UUID) error
}

// Auditor records privileged mutations inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error)
}

// Service orchestrates catalog and binding mutations. Every mutation and its
// audit record commit in one transaction; the catalog cache is invalidated
// synchronously after commit.
type Service struct {
	pool    db.Pool
	store   BindingStore
	auditor Auditor
	catalog *Catalog
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool db.Pool, store BindingStore, auditor Auditor, catalog *Catalog) *Service {
	return &Service{pool: pool, store: store, auditor: auditor, catalog: catalog}
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx, s.pool)
}

// EnsurePermission upserts a catalog entry and audits it.
func (s *Service) EnsurePermission(ctx context.Context, name, description string, actor *uuid.UUID) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, errors.New("rbac: permission name required")
	}
	var perm Permission
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		perm, err = s.store.UpsertPermission(ctx, tx, name, strings.TrimSpace(description), actor)
		if err != nil {
			return err
		}
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionCreate,
			Entity:   "permissions",
			EntityID: perm.ID.String(),
			NewValue: map[string]any{"permission_name": perm.Name, "description": perm.Description},
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return Permission{}, err
	}
	if s.catalog != nil {
		s.catalog.Invalidate()
	}
	return perm, nil
}

// SetRolePermissions replaces the role's permission set by attaching the
// missing ids and detaching the removed ones.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, actor *uuid.UUID) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		current, err := s.store.RolePermissionIDs(ctx, tx, roleID)
		if err != nil {
			return err
		}
		existing := make(map[uuid.UUID]struct{}, len(current))
		for _, id := range current {
			existing[id] = struct{}{}
		}
		keep := make(map[uuid.UUID]struct{}, len(permissionIDs))
		for _, id := range permissionIDs {
			keep[id] = struct{}{}
			if _, ok := existing[id]; !ok {
				if err := s.store.AttachPermission(ctx, tx, roleID, id, actor); err != nil {
					return err
				}
			}
		}
		for _, id := range current {
			if _, ok := keep[id]; !ok {
				if err := s.store.DetachPermission(ctx, tx, roleID, id); err != nil {
					return err
				}
			}
		}
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionSetPerms,
			Entity:   "role_permissions",
			EntityID: roleID.String(),
			OldValue: map[string]any{"permission_ids": uuidStrings(current)},
			NewValue: map[string]any{"permission_ids": uuidStrings(permissionIDs)},
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	return err
}

// AssignRole assigns a role to the given user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uuid.UUID, actor *uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.store.AssignRole(ctx, tx, userID, roleID, actor); err != nil {
			return err
		}
		_, err := s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionAssignRole,
			Entity:   "user_roles",
			EntityID: userID.String(),
			NewValue: map[string]any{"user_id": userID.String(), "role_id": roleID.String()},
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uuid.UUID, actor *uuid.UUID) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.store.RemoveRole(ctx, tx, userID, roleID); err != nil {
			return err
		}
		_, err := s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionRemoveRole,
			Entity:   "user_roles",
			EntityID: userID.String(),
			OldValue: map[string]any{"user_id": userID.String(), "role_id": roleID.String()},
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
