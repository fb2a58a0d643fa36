package acl

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Repository provides PostgreSQL backed persistence for object permissions.
// Methods take a db.Queryer so grants and their audit records share one
// transaction.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

const grantColumns = `op.object_permission_id, op.user_id, op.role_id, op.object_type_id, ot.type_name, op.object_id, op.permission_id, op.granted_at, op.granted_by, op.revoked_at, op.is_active, op.applies_to`

// LookupObjectType resolves a registered object type by name.
func (r *Repository) LookupObjectType(ctx context.Context, q db.Queryer, name string) (ObjectType, error) {
	var ot ObjectType
	err := q.QueryRow(ctx, `SELECT object_type_id, type_name, COALESCE(description, '') FROM object_types WHERE type_name = $1`, name).
		Scan(&ot.ID, &ot.Name, &ot.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ObjectType{}, shared.ErrUnknownObjectType
		}
		return ObjectType{}, shared.Persistence("acl: lookup object type", err)
	}
	return ot, nil
}

// RegisterObjectType inserts an object type, returning the existing row on conflict.
func (r *Repository) RegisterObjectType(ctx context.Context, q db.Queryer, name, description string) (ObjectType, error) {
	var ot ObjectType
	err := q.QueryRow(ctx, `
		INSERT INTO object_types (type_name, description)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (type_name) DO UPDATE SET description = EXCLUDED.description
		RETURNING object_type_id, type_name, COALESCE(description, '')`,
		name, description,
	).Scan(&ot.ID, &ot.Name, &ot.Description)
	if err != nil {
		return ObjectType{}, shared.Persistence("acl: register object type", err)
	}
	return ot, nil
}

// ListObjectTypes returns every registered object type ordered by name.
func (r *Repository) ListObjectTypes(ctx context.Context, q db.Queryer) ([]ObjectType, error) {
	rows, err := q.Query(ctx, `SELECT object_type_id, type_name, COALESCE(description, '') FROM object_types ORDER BY type_name`)
	if err != nil {
		return nil, shared.Persistence("acl: list object types", err)
	}
	defer rows.Close()
	var types []ObjectType
	for rows.Next() {
		var ot ObjectType
		if err := rows.Scan(&ot.ID, &ot.Name, &ot.Description); err != nil {
			return nil, shared.Persistence("acl: scan object type", err)
		}
		types = append(types, ot)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("acl: object type rows", err)
	}
	return types, nil
}

// Insert creates a new grant row.
func (r *Repository) Insert(ctx context.Context, q db.Queryer, p ObjectPermission) (ObjectPermission, error) {
	row := q.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO object_permissions (user_id, role_id, object_type_id, object_id, permission_id, granted_by, applies_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING *
		)
		SELECT `+grantColumns+`
		FROM inserted op
		JOIN object_types ot ON ot.object_type_id = op.object_type_id`,
		p.UserID, p.RoleID, p.ObjectTypeID, p.ObjectID, p.PermissionID, p.GrantedBy, p.AppliesTo,
	)
	grant, err := scanGrant(row)
	if err != nil {
		return ObjectPermission{}, shared.Persistence("acl: insert grant", err)
	}
	return grant, nil
}

// Get fetches a grant by id.
func (r *Repository) Get(ctx context.Context, q db.Queryer, id uuid.UUID) (ObjectPermission, error) {
	row := q.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM object_permissions op
		JOIN object_types ot ON ot.object_type_id = op.object_type_id
		WHERE op.object_permission_id = $1`, id)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ObjectPermission{}, shared.ErrNotFound
		}
		return ObjectPermission{}, shared.Persistence("acl: get grant", err)
	}
	return grant, nil
}

// MarkRevoked stamps the grant revoked. The row is never deleted.
func (r *Repository) MarkRevoked(ctx context.Context, q db.Queryer, id uuid.UUID) (ObjectPermission, error) {
	row := q.QueryRow(ctx, `
		WITH revoked AS (
			UPDATE object_permissions
			SET revoked_at = NOW(), is_active = FALSE
			WHERE object_permission_id = $1
			RETURNING *
		)
		SELECT `+grantColumns+`
		FROM revoked op
		JOIN object_types ot ON ot.object_type_id = op.object_type_id`, id)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ObjectPermission{}, shared.ErrNotFound
		}
		return ObjectPermission{}, shared.Persistence("acl: mark revoked", err)
	}
	return grant, nil
}

// ListActive returns active, non-revoked grants for one object.
func (r *Repository) ListActive(ctx context.Context, q db.Queryer, typeName, objectID string) ([]ObjectPermission, error) {
	rows, err := q.Query(ctx, `
		SELECT `+grantColumns+`
		FROM object_permissions op
		JOIN object_types ot ON ot.object_type_id = op.object_type_id
		WHERE ot.type_name = $1
		  AND op.object_id = $2
		  AND op.is_active
		  AND op.revoked_at IS NULL
		ORDER BY op.granted_at DESC`,
		typeName, objectID,
	)
	if err != nil {
		return nil, shared.Persistence("acl: list active", err)
	}
	defer rows.Close()
	var grants []ObjectPermission
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, shared.Persistence("acl: scan grant", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("acl: active rows", err)
	}
	return grants, nil
}

func scanGrant(row pgx.Row) (ObjectPermission, error) {
	var p ObjectPermission
	err := row.Scan(&p.ID, &p.UserID, &p.RoleID, &p.ObjectTypeID, &p.ObjectType, &p.ObjectID, &p.PermissionID, &p.GrantedAt, &p.GrantedBy, &p.RevokedAt, &p.IsActive, &p.AppliesTo)
	return p, err
}
