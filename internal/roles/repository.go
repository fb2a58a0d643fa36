package roles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the role hierarchy.
// Methods take a db.Queryer so callers can run them inside their own
// transaction together with the matching audit record.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

const roleColumns = `role_id, role_name, COALESCE(description, ''), parent_role_id, created_at, created_by, updated_at, updated_by`

// Insert creates a new role.
func (r *Repository) Insert(ctx context.Context, q db.Queryer, name, description string, parentID, actor *uuid.UUID) (Role, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO roles (role_name, description, parent_role_id, created_by, updated_by)
		VALUES ($1, NULLIF($2, ''), $3, $4, $4)
		RETURNING `+roleColumns,
		name, description, parentID, actor,
	)
	role, err := scanRole(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, shared.Persistence("roles: insert", err)
	}
	return role, nil
}

// Get fetches a role by ID.
func (r *Repository) Get(ctx context.Context, q db.Queryer, id uuid.UUID) (Role, error) {
	row := q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, shared.Persistence("roles: get", err)
	}
	return role, nil
}

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context, q db.Queryer) ([]Role, error) {
	rows, err := q.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY role_name`)
	if err != nil {
		return nil, shared.Persistence("roles: list", err)
	}
	defer rows.Close()
	var result []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, shared.Persistence("roles: scan", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("roles: list rows", err)
	}
	return result, nil
}

// Parents returns the parent pointer of every role, keyed by role id. The
// graph walks happen in memory against this index.
func (r *Repository) Parents(ctx context.Context, q db.Queryer) (map[uuid.UUID]*uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT role_id, parent_role_id FROM roles`)
	if err != nil {
		return nil, shared.Persistence("roles: parents", err)
	}
	defer rows.Close()
	parents := make(map[uuid.UUID]*uuid.UUID)
	for rows.Next() {
		var (
			id     uuid.UUID
			parent *uuid.UUID
		)
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, shared.Persistence("roles: parents scan", err)
		}
		parents[id] = parent
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("roles: parents rows", err)
	}
	return parents, nil
}

// SetParent re-points a role's parent and returns the updated row.
func (r *Repository) SetParent(ctx context.Context, q db.Queryer, id uuid.UUID, parentID, actor *uuid.UUID) (Role, error) {
	row := q.QueryRow(ctx, `
		UPDATE roles
		SET parent_role_id = $2, updated_at = NOW(), updated_by = $3
		WHERE role_id = $1
		RETURNING `+roleColumns,
		id, parentID, actor,
	)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, shared.Persistence("roles: set parent", err)
	}
	return role, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &role.CreatedAt, &role.CreatedBy, &role.UpdatedAt, &role.UpdatedBy)
	return role, err
}
