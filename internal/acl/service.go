package acl

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Store defines the persistence the engine needs.
type Store interface {
	LookupObjectType(ctx context.Context, q db.Queryer, name string) (ObjectType, error)
	RegisterObjectType(ctx context.Context, q db.Queryer, name, description string) (ObjectType, error)
	ListObjectTypes(ctx context.Context, q db.Queryer) ([]ObjectType, error)
	Insert(ctx context.Context, q db.Queryer, p ObjectPermission) (ObjectPermission, error)
	Get(ctx context.Context, q db.Queryer, id uuid.UUID) (ObjectPermission, error)
	MarkRevoked(ctx context.Context, q db.Queryer, id uuid.UUID) (ObjectPermission, error)
	ListActive(ctx context.Context, q db.Queryer, typeName, objectID string) ([]ObjectPermission, error)
}

// Auditor records privileged mutations inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error)
}

// GrantParams describes one grant request. Exactly one of UserID and RoleID
// must be set.
type GrantParams struct {
	UserID       *uuid.UUID
	RoleID       *uuid.UUID
	ObjectType   string
	ObjectID     string
	PermissionID uuid.UUID
	AppliesTo    string
	Actor        *uuid.UUID
}

// Engine owns object permission rows: additive grants, idempotent revokes,
// nothing ever deleted. Subject validation happens before any write.
type Engine struct {
	pool    db.Pool
	store   Store
	auditor Auditor
}

// NewEngine builds an Engine.
func NewEngine(pool db.Pool, store Store, auditor Auditor) *Engine {
	return &Engine{pool: pool, store: store, auditor: auditor}
}

// Grant creates an access control entry and audits the full new row.
func (e *Engine) Grant(ctx context.Context, params GrantParams) (ObjectPermission, error) {
	if params.UserID != nil && params.RoleID != nil {
		return ObjectPermission{}, shared.ErrAmbiguousSubject
	}
	if params.UserID == nil && params.RoleID == nil {
		return ObjectPermission{}, shared.ErrMissingSubject
	}
	if params.AppliesTo == "" {
		params.AppliesTo = ScopeRow
	}
	if params.AppliesTo != ScopeRow && params.AppliesTo != ScopeCascade {
		return ObjectPermission{}, errors.New("acl: applies_to must be row or cascade")
	}
	if params.ObjectID == "" {
		return ObjectPermission{}, errors.New("acl: object id required")
	}

	var grant ObjectPermission
	err := db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		objectType, err := e.store.LookupObjectType(ctx, tx, params.ObjectType)
		if err != nil {
			return err
		}
		grant, err = e.store.Insert(ctx, tx, ObjectPermission{
			UserID:       params.UserID,
			RoleID:       params.RoleID,
			ObjectTypeID: objectType.ID,
			ObjectID:     params.ObjectID,
			PermissionID: params.PermissionID,
			GrantedBy:    params.Actor,
			AppliesTo:    params.AppliesTo,
		})
		if err != nil {
			return err
		}
		_, err = e.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  params.Actor,
			Action:   audit.ActionGrant,
			Entity:   "object_permissions",
			EntityID: grant.ID.String(),
			NewValue: grant.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return ObjectPermission{}, err
	}
	return grant, nil
}

// Revoke stamps the entry revoked and inactive. Revoking an already revoked
// entry succeeds without touching the row again.
func (e *Engine) Revoke(ctx context.Context, grantID uuid.UUID, actor *uuid.UUID) error {
	return db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		current, err := e.store.Get(ctx, tx, grantID)
		if err != nil {
			return err
		}
		if current.Revoked() {
			return nil
		}
		revoked, err := e.store.MarkRevoked(ctx, tx, grantID)
		if err != nil {
			return err
		}
		_, err = e.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionRevoke,
			Entity:   "object_permissions",
			EntityID: grantID.String(),
			OldValue: current.Snapshot(),
			NewValue: revoked.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
}

// ListActive returns the active entries for one object.
func (e *Engine) ListActive(ctx context.Context, objectType, objectID string) ([]ObjectPermission, error) {
	if _, err := e.store.LookupObjectType(ctx, e.pool, objectType); err != nil {
		return nil, err
	}
	return e.store.ListActive(ctx, e.pool, objectType, objectID)
}

// RegisterObjectType registers a type name grants may reference.
func (e *Engine) RegisterObjectType(ctx context.Context, name, description string, actor *uuid.UUID) (ObjectType, error) {
	var ot ObjectType
	err := db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		var err error
		ot, err = e.store.RegisterObjectType(ctx, tx, name, description)
		if err != nil {
			return err
		}
		_, err = e.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionCreate,
			Entity:   "object_types",
			EntityID: ot.ID.String(),
			NewValue: map[string]any{"type_name": ot.Name, "description": ot.Description},
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return ObjectType{}, err
	}
	return ot, nil
}

// ListObjectTypes returns every registered object type.
func (e *Engine) ListObjectTypes(ctx context.Context) ([]ObjectType, error) {
	return e.store.ListObjectTypes(ctx, e.pool)
}
