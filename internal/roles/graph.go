package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

const maxRoleNameLen = 100

// Store defines the persistence needed by the graph.
type Store interface {
	Insert(ctx context.Context, q db.Queryer, name, description string, parentID, actor *uuid.UUID) (Role, error)
	Get(ctx context.Context, q db.Queryer, id uuid.UUID) (Role, error)
	List(ctx context.Context, q db.Queryer) ([]Role, error)
	Parents(ctx context.Context, q db.Queryer) (map[uuid.UUID]*uuid.UUID, error)
	SetParent(ctx context.Context, q db.Queryer, id uuid.UUID, parentID, actor *uuid.UUID) (Role, error)
}

// Graph maintains the role hierarchy. It validates cycles at write time and
// guards against corrupted data at read time. It never writes audit records
// itself; callers do, in the same transaction.
type Graph struct {
	store Store
}

// NewGraph builds a Graph over the given store.
func NewGraph(store Store) *Graph {
	return &Graph{store: store}
}

// AddRole inserts a new role under the optional parent.
func (g *Graph) AddRole(ctx context.Context, q db.Queryer, name, description string, parentID, actor *uuid.UUID) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	if len(name) > maxRoleNameLen {
		return Role{}, errors.New("roles: role name too long")
	}
	if parentID != nil {
		if _, err := g.store.Get(ctx, q, *parentID); err != nil {
			return Role{}, err
		}
	}
	return g.store.Insert(ctx, q, name, strings.TrimSpace(description), parentID, actor)
}

// Reparent moves a role under newParent (nil makes it a root). It fails with
// shared.ErrCycle when newParent is the role itself or one of its descendants,
// leaving the graph unchanged.
func (g *Graph) Reparent(ctx context.Context, q db.Queryer, roleID uuid.UUID, newParent, actor *uuid.UUID) (old Role, updated Role, err error) {
	old, err = g.store.Get(ctx, q, roleID)
	if err != nil {
		return Role{}, Role{}, err
	}
	if newParent != nil {
		if *newParent == roleID {
			return Role{}, Role{}, shared.ErrCycle
		}
		parents, err := g.store.Parents(ctx, q)
		if err != nil {
			return Role{}, Role{}, err
		}
		if _, ok := parents[*newParent]; !ok {
			return Role{}, Role{}, shared.ErrNotFound
		}
		// Walk the candidate parent's ancestor chain before committing; if it
		// passes through roleID the reparent would close a cycle.
		chain, err := walkAncestors(parents, *newParent)
		if err != nil {
			return Role{}, Role{}, err
		}
		for _, ancestor := range chain {
			if ancestor == roleID {
				return Role{}, Role{}, shared.ErrCycle
			}
		}
	}
	updated, err = g.store.SetParent(ctx, q, roleID, newParent, actor)
	if err != nil {
		return Role{}, Role{}, err
	}
	return old, updated, nil
}

// AncestorsOf returns the role's ancestors, closest first, root last.
func (g *Graph) AncestorsOf(ctx context.Context, q db.Queryer, roleID uuid.UUID) ([]uuid.UUID, error) {
	parents, err := g.store.Parents(ctx, q)
	if err != nil {
		return nil, err
	}
	if _, ok := parents[roleID]; !ok {
		return nil, shared.ErrNotFound
	}
	return walkAncestors(parents, roleID)
}

// IsAncestor reports whether candidate appears in the ancestor chain of "of".
func (g *Graph) IsAncestor(ctx context.Context, q db.Queryer, candidate, of uuid.UUID) (bool, error) {
	ancestors, err := g.AncestorsOf(ctx, q, of)
	if err != nil {
		return false, err
	}
	for _, id := range ancestors {
		if id == candidate {
			return true, nil
		}
	}
	return false, nil
}

// Get fetches a role by ID.
func (g *Graph) Get(ctx context.Context, q db.Queryer, id uuid.UUID) (Role, error) {
	return g.store.Get(ctx, q, id)
}

// List returns all roles.
func (g *Graph) List(ctx context.Context, q db.Queryer) ([]Role, error) {
	return g.store.List(ctx, q)
}

// walkAncestors follows parent pointers from start (exclusive) upward. A
// visited set bounds the walk so rows inserted outside this API cannot hang
// it; revisiting a node surfaces shared.ErrGraphCorruption.
func walkAncestors(parents map[uuid.UUID]*uuid.UUID, start uuid.UUID) ([]uuid.UUID, error) {
	visited := map[uuid.UUID]struct{}{start: {}}
	var chain []uuid.UUID
	current := parents[start]
	for current != nil {
		id := *current
		if _, seen := visited[id]; seen {
			return nil, shared.ErrGraphCorruption
		}
		visited[id] = struct{}{}
		chain = append(chain, id)
		next, ok := parents[id]
		if !ok {
			// Dangling parent pointer; treat the known chain as complete.
			break
		}
		current = next
	}
	return chain, nil
}
