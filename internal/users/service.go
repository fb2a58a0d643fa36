package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Store defines the persistence the service needs.
type Store interface {
	Insert(ctx context.Context, q db.Queryer, params CreateParams, passwordHash string, actor *uuid.UUID) (User, error)
	Get(ctx context.Context, q db.Queryer, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, q db.Queryer, username string) (User, error)
	List(ctx context.Context, q db.Queryer) ([]User, error)
	Update(ctx context.Context, q db.Queryer, id uuid.UUID, params UpdateParams, actor *uuid.UUID) (User, error)
	SetActive(ctx context.Context, q db.Queryer, id uuid.UUID, active bool, actor *uuid.UUID) (User, error)
}

// Auditor records privileged mutations inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error)
}

// Service handles user account business logic. Users are never hard-deleted;
// audit and ACL rows keep referencing them after deactivation.
type Service struct {
	pool     db.Pool
	store    Store
	auditor  Auditor
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(pool db.Pool, store Store, auditor Auditor) *Service {
	return &Service{pool: pool, store: store, auditor: auditor, validate: validator.New()}
}

// Create inserts a user and its audit record atomically.
func (s *Service) Create(ctx context.Context, params CreateParams, actor *uuid.UUID) (User, error) {
	params.Username = strings.TrimSpace(params.Username)
	params.Email = strings.TrimSpace(params.Email)
	if err := s.validate.Struct(params); err != nil {
		return User{}, fmt.Errorf("users: validate: %w", err)
	}
	var passwordHash string
	if params.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		passwordHash = string(hash)
	}

	var user User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		user, err = s.store.Insert(ctx, tx, params, passwordHash, actor)
		if err != nil {
			return err
		}
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionCreate,
			Entity:   "users",
			EntityID: user.ID.String(),
			NewValue: user.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Update applies profile changes and audits the before/after state.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams, actor *uuid.UUID) (User, error) {
	if err := s.validate.Struct(params); err != nil {
		return User{}, fmt.Errorf("users: validate: %w", err)
	}
	var user User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		old, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		user, err = s.store.Update(ctx, tx, id, params, actor)
		if err != nil {
			return err
		}
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionUpdate,
			Entity:   "users",
			EntityID: id.String(),
			OldValue: old.Snapshot(),
			NewValue: user.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// SetActive soft-enables or soft-disables the account.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool, actor *uuid.UUID) (User, error) {
	var user User
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		old, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		user, err = s.store.SetActive(ctx, tx, id, active, actor)
		if err != nil {
			return err
		}
		action := audit.ActionUpdate
		if !active {
			action = audit.ActionDeactivate
		}
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   action,
			Entity:   "users",
			EntityID: id.String(),
			OldValue: old.Snapshot(),
			NewValue: user.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.store.Get(ctx, s.pool, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx, s.pool)
}
