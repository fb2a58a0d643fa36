package roles

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Auditor records privileged mutations inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error)
}

// Service wraps the role graph with transaction and audit handling. The graph
// itself stays pure; this layer is the caller that audits.
type Service struct {
	pool    db.Pool
	graph   *Graph
	auditor Auditor
}

// NewService builds Service instance.
func NewService(pool db.Pool, graph *Graph, auditor Auditor) *Service {
	return &Service{pool: pool, graph: graph, auditor: auditor}
}

// Create inserts a role and its audit record atomically.
func (s *Service) Create(ctx context.Context, name, description string, parentID, actor *uuid.UUID) (Role, error) {
	var role Role
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		role, err = s.graph.AddRole(ctx, tx, name, description, parentID, actor)
		if err != nil {
			return err
		}
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionCreate,
			Entity:   "roles",
			EntityID: role.ID.String(),
			NewValue: role.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// Reparent moves a role and audits the before/after state atomically.
func (s *Service) Reparent(ctx context.Context, roleID uuid.UUID, newParent, actor *uuid.UUID) (Role, error) {
	var updated Role
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		old, role, err := s.graph.Reparent(ctx, tx, roleID, newParent, actor)
		if err != nil {
			return err
		}
		updated = role
		_, err = s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:  actor,
			Action:   audit.ActionReparent,
			Entity:   "roles",
			EntityID: roleID.String(),
			OldValue: old.Snapshot(),
			NewValue: role.Snapshot(),
			Meta:     shared.RequestMetaFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.graph.Get(ctx, s.pool, id)
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.graph.List(ctx, s.pool)
}

// AncestorsOf returns the ancestor chain, closest ancestor first.
func (s *Service) AncestorsOf(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	return s.graph.AncestorsOf(ctx, s.pool, roleID)
}

// IsAncestor reports whether candidate is an ancestor of "of".
func (s *Service) IsAncestor(ctx context.Context, candidate, of uuid.UUID) (bool, error) {
	return s.graph.IsAncestor(ctx, s.pool, candidate, of)
}
