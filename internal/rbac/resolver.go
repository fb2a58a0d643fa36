package rbac

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// ResolverStore provides the binding and grant reads the resolver needs.
type ResolverStore interface {
	UserExists(ctx context.Context, q db.Queryer, userID uuid.UUID) (bool, error)
	DirectRoles(ctx context.Context, q db.Queryer, userID uuid.UUID) ([]uuid.UUID, error)
	PermissionNamesForRoles(ctx context.Context, q db.Queryer, roleIDs []uuid.UUID) ([]string, error)
	ObjectTypeExists(ctx context.Context, q db.Queryer, typeName string) (bool, error)
	ActiveObjectGrants(ctx context.Context, q db.Queryer, typeName string, userID uuid.UUID, roleIDs []uuid.UUID) ([]ObjectGrant, error)
}

// RoleAncestors walks the role hierarchy upward, closest ancestor first.
type RoleAncestors interface {
	AncestorsOf(ctx context.Context, q db.Queryer, roleID uuid.UUID) ([]uuid.UUID, error)
}

// ObjectHierarchy is implemented by the domain owning an object type. The
// resolver only ever asks whether one object sits below another; traversal
// semantics belong to that domain.
type ObjectHierarchy interface {
	IsDescendantObject(ctx context.Context, objectType, parentID, childID string) (bool, error)
}

// Resolver computes effective permission sets. It holds no mutable state;
// ancestor walks are memoized per call only, so binding mutations are visible
// by the next resolution.
type Resolver struct {
	q         db.Queryer
	store     ResolverStore
	graph     RoleAncestors
	hierarchy ObjectHierarchy
}

// NewResolver constructs a Resolver reading through q (usually the pool; pass
// a tx to resolve against an uncommitted snapshot).
func NewResolver(q db.Queryer, store ResolverStore, graph RoleAncestors, hierarchy ObjectHierarchy) *Resolver {
	return &Resolver{q: q, store: store, graph: graph, hierarchy: hierarchy}
}

// EffectivePermissions returns the sorted union of role-derived permissions
// and, when ref is given, active object-scoped grants. Object entries only
// ever widen the set; absence of a grant is the only form of denial.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID uuid.UUID, ref *ObjectRef) ([]string, error) {
	exists, err := r.store.UserExists(ctx, r.q, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.ErrUnknownUser
	}

	expanded, err := r.expandRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	base, err := r.store.PermissionNamesForRoles(ctx, r.q, expanded)
	if err != nil {
		return nil, err
	}
	for _, name := range base {
		set[name] = struct{}{}
	}

	if ref != nil {
		if err := r.applyObjectGrants(ctx, userID, expanded, *ref, set); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HasPermission reports whether the effective set contains permission. It is
// defined as membership in EffectivePermissions and must stay equivalent.
func (r *Resolver) HasPermission(ctx context.Context, userID uuid.UUID, permission string, ref *ObjectRef) (bool, error) {
	names, err := r.EffectivePermissions(ctx, userID, ref)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == permission {
			return true, nil
		}
	}
	return false, nil
}

// expandRoles unions the user's direct roles with every ancestor of each:
// a child role implicitly holds everything its ancestors grant.
func (r *Resolver) expandRoles(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	direct, err := r.store.DirectRoles(ctx, r.q, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(direct))
	expanded := make([]uuid.UUID, 0, len(direct))
	for _, roleID := range direct {
		if _, ok := seen[roleID]; !ok {
			seen[roleID] = struct{}{}
			expanded = append(expanded, roleID)
		}
		ancestors, err := r.graph.AncestorsOf(ctx, r.q, roleID)
		if err != nil {
			return nil, err
		}
		for _, ancestor := range ancestors {
			if _, ok := seen[ancestor]; !ok {
				seen[ancestor] = struct{}{}
				expanded = append(expanded, ancestor)
			}
		}
	}
	return expanded, nil
}

func (r *Resolver) applyObjectGrants(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID, ref ObjectRef, set map[string]struct{}) error {
	exists, err := r.store.ObjectTypeExists(ctx, r.q, ref.Type)
	if err != nil {
		return err
	}
	if !exists {
		return shared.ErrUnknownObjectType
	}
	grants, err := r.store.ActiveObjectGrants(ctx, r.q, ref.Type, userID, roleIDs)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g.ObjectID == ref.ID {
			set[g.Permission] = struct{}{}
			continue
		}
		if g.AppliesTo != ScopeCascade || r.hierarchy == nil {
			continue
		}
		descendant, err := r.hierarchy.IsDescendantObject(ctx, ref.Type, g.ObjectID, ref.ID)
		if err != nil {
			return err
		}
		if descendant {
			set[g.Permission] = struct{}{}
		}
	}
	return nil
}
