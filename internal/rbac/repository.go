package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Repository provides PostgreSQL backed access to the permission catalog,
// the role/permission bindings, and the grant rows the resolver reads.
// Write methods take a db.Queryer so they compose into caller transactions.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// ListPermissions returns the whole permission catalog ordered by name.
func (r *Repository) ListPermissions(ctx context.Context, q db.Queryer) ([]Permission, error) {
	rows, err := q.Query(ctx, `SELECT permission_id, permission_name, COALESCE(description, '') FROM permissions ORDER BY permission_name`)
	if err != nil {
		return nil, shared.Persistence("rbac: list permissions", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, shared.Persistence("rbac: scan permission", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("rbac: permission rows", err)
	}
	return perms, nil
}

// UpsertPermission inserts the permission or refreshes its description.
func (r *Repository) UpsertPermission(ctx context.Context, q db.Queryer, name, description string, actor *uuid.UUID) (Permission, error) {
	var p Permission
	err := q.QueryRow(ctx, `
		INSERT INTO permissions (permission_name, description, created_by, updated_by)
		VALUES ($1, NULLIF($2, ''), $3, $3)
		ON CONFLICT (permission_name)
		DO UPDATE SET description = EXCLUDED.description, updated_at = NOW(), updated_by = EXCLUDED.updated_by
		RETURNING permission_id, permission_name, COALESCE(description, '')`,
		name, description, actor,
	).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		return Permission{}, shared.Persistence("rbac: upsert permission", err)
	}
	return p, nil
}

// RolePermissionIDs lists permission ids currently attached to the role.
func (r *Repository) RolePermissionIDs(ctx context.Context, q db.Queryer, roleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, shared.Persistence("rbac: role permissions", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, shared.Persistence("rbac: scan role permission", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("rbac: role permission rows", err)
	}
	return ids, nil
}

// AttachPermission binds a permission to a role.
func (r *Repository) AttachPermission(ctx context.Context, q db.Queryer, roleID, permissionID uuid.UUID, actor *uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID, actor,
	)
	return shared.Persistence("rbac: attach permission", err)
}

// DetachPermission unbinds a permission from a role.
func (r *Repository) DetachPermission(ctx context.Context, q db.Queryer, roleID, permissionID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return shared.Persistence("rbac: detach permission", err)
}

// AssignRole binds a role to a user with provenance.
func (r *Repository) AssignRole(ctx context.Context, q db.Queryer, userID, roleID uuid.UUID, actor *uuid.UUID) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO NOTHING`,
		userID, roleID, actor,
	)
	return shared.Persistence("rbac: assign role", err)
}

// RemoveRole unbinds a role from a user.
func (r *Repository) RemoveRole(ctx context.Context, q db.Queryer, userID, roleID uuid.UUID) error {
	_, err := q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return shared.Persistence("rbac: remove role", err)
}

// UserExists reports whether the user id resolves.
func (r *Repository) UserExists(ctx context.Context, q db.Queryer, userID uuid.UUID) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return false, shared.Persistence("rbac: user exists", err)
	}
	return exists, nil
}

// ObjectTypeExists reports whether the object type name is registered.
func (r *Repository) ObjectTypeExists(ctx context.Context, q db.Queryer, typeName string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM object_types WHERE type_name = $1)`, typeName).Scan(&exists); err != nil {
		return false, shared.Persistence("rbac: object type exists", err)
	}
	return exists, nil
}

// DirectRoles lists the roles bound directly to the user.
func (r *Repository) DirectRoles(ctx context.Context, q db.Queryer, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, shared.Persistence("rbac: direct roles", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, shared.Persistence("rbac: scan direct role", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("rbac: direct role rows", err)
	}
	return ids, nil
}

// PermissionNamesForRoles unions permission names across the expanded role set.
func (r *Repository) PermissionNamesForRoles(ctx context.Context, q db.Queryer, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, `
		SELECT DISTINCT p.permission_name
		FROM role_permissions rp
		JOIN permissions p ON p.permission_id = rp.permission_id
		WHERE rp.role_id = ANY($1)`,
		roleIDs,
	)
	if err != nil {
		return nil, shared.Persistence("rbac: role permission names", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, shared.Persistence("rbac: scan permission name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("rbac: permission name rows", err)
	}
	return names, nil
}

// ActiveObjectGrants returns active, non-revoked grant rows of the given
// object type whose subject is the user directly or any role in roleIDs.
// Filtering by object id, including cascade scope, happens in the resolver.
func (r *Repository) ActiveObjectGrants(ctx context.Context, q db.Queryer, typeName string, userID uuid.UUID, roleIDs []uuid.UUID) ([]ObjectGrant, error) {
	rows, err := q.Query(ctx, `
		SELECT op.object_id, p.permission_name, op.applies_to
		FROM object_permissions op
		JOIN object_types ot ON ot.object_type_id = op.object_type_id
		JOIN permissions p ON p.permission_id = op.permission_id
		WHERE ot.type_name = $1
		  AND op.is_active
		  AND op.revoked_at IS NULL
		  AND (op.user_id = $2 OR op.role_id = ANY($3))`,
		typeName, userID, roleIDs,
	)
	if err != nil {
		return nil, shared.Persistence("rbac: active object grants", err)
	}
	defer rows.Close()
	var grants []ObjectGrant
	for rows.Next() {
		var g ObjectGrant
		if err := rows.Scan(&g.ObjectID, &g.Permission, &g.AppliesTo); err != nil {
			return nil, shared.Persistence("rbac: scan object grant", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("rbac: object grant rows", err)
	}
	return grants, nil
}
