package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Repository provides PostgreSQL backed persistence for users.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

const userColumns = `user_id, username, email, COALESCE(full_name, ''), COALESCE(phone_number, ''), is_active, last_login_at, created_at, created_by, updated_at, updated_by`

// Insert creates a user row. passwordHash may be empty when the external
// provider owns the credential entirely.
func (r *Repository) Insert(ctx context.Context, q db.Queryer, params CreateParams, passwordHash string, actor *uuid.UUID) (User, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, phone_number, created_by, updated_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $6)
		RETURNING `+userColumns,
		params.Username, params.Email, passwordHash, params.FullName, params.PhoneNumber, actor,
	)
	user, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, shared.ErrDuplicate
		}
		return User{}, shared.Persistence("users: insert", err)
	}
	return user, nil
}

// Get fetches a user by ID.
func (r *Repository) Get(ctx context.Context, q db.Queryer, id uuid.UUID) (User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, shared.Persistence("users: get", err)
	}
	return user, nil
}

// GetByUsername fetches a user by username.
func (r *Repository) GetByUsername(ctx context.Context, q db.Queryer, username string) (User, error) {
	row := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, shared.Persistence("users: get by username", err)
	}
	return user, nil
}

// List returns all users ordered by username.
func (r *Repository) List(ctx context.Context, q db.Queryer) ([]User, error) {
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, shared.Persistence("users: list", err)
	}
	defer rows.Close()
	var result []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, shared.Persistence("users: scan", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("users: list rows", err)
	}
	return result, nil
}

// Update applies non-nil profile fields and returns the updated row.
func (r *Repository) Update(ctx context.Context, q db.Queryer, id uuid.UUID, params UpdateParams, actor *uuid.UUID) (User, error) {
	row := q.QueryRow(ctx, `
		UPDATE users
		SET email = COALESCE($2, email),
		    full_name = COALESCE(NULLIF($3, ''), full_name),
		    phone_number = COALESCE(NULLIF($4, ''), phone_number),
		    updated_at = NOW(),
		    updated_by = $5
		WHERE user_id = $1
		RETURNING `+userColumns,
		id, params.Email, deref(params.FullName), deref(params.PhoneNumber), actor,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		if db.IsUniqueViolation(err) {
			return User{}, shared.ErrDuplicate
		}
		return User{}, shared.Persistence("users: update", err)
	}
	return user, nil
}

// SetActive flips the soft-disable flag and returns the updated row.
func (r *Repository) SetActive(ctx context.Context, q db.Queryer, id uuid.UUID, active bool, actor *uuid.UUID) (User, error) {
	row := q.QueryRow(ctx, `
		UPDATE users
		SET is_active = $2, updated_at = NOW(), updated_by = $3
		WHERE user_id = $1
		RETURNING `+userColumns,
		id, active, actor,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, shared.Persistence("users: set active", err)
	}
	return user, nil
}

// Credential returns the stored password hash for the local auth provider.
func (r *Repository) Credential(ctx context.Context, q db.Queryer, username string) (uuid.UUID, string, bool, error) {
	var (
		id     uuid.UUID
		hash   string
		active bool
	)
	err := q.QueryRow(ctx, `SELECT user_id, password_hash, is_active FROM users WHERE username = $1`, username).Scan(&id, &hash, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, "", false, shared.ErrNotFound
		}
		return uuid.Nil, "", false, shared.Persistence("users: credential", err)
	}
	return id, hash, active, nil
}

// TouchLastLogin stamps last_login_at.
func (r *Repository) TouchLastLogin(ctx context.Context, q db.Queryer, id uuid.UUID) error {
	_, err := q.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE user_id = $1`, id)
	return shared.Persistence("users: touch last login", err)
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PhoneNumber, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.CreatedBy, &u.UpdatedAt, &u.UpdatedBy)
	return u, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
