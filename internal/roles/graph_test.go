package roles

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

type memoryRoleStore struct {
	roles map[uuid.UUID]Role
}

func newMemoryRoleStore() *memoryRoleStore {
	return &memoryRoleStore{roles: make(map[uuid.UUID]Role)}
}

func (s *memoryRoleStore) add(name string, parentID *uuid.UUID) uuid.UUID {
	id := uuid.New()
	s.roles[id] = Role{ID: id, Name: name, ParentID: parentID}
	return id
}

func (s *memoryRoleStore) Insert(ctx context.Context, q db.Queryer, name, description string, parentID, actor *uuid.UUID) (Role, error) {
	for _, r := range s.roles {
		if r.Name == name {
			return Role{}, shared.ErrDuplicate
		}
	}
	id := s.add(name, parentID)
	role := s.roles[id]
	role.Description = description
	s.roles[id] = role
	return role, nil
}

func (s *memoryRoleStore) Get(ctx context.Context, q db.Queryer, id uuid.UUID) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *memoryRoleStore) List(ctx context.Context, q db.Queryer) ([]Role, error) {
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *memoryRoleStore) Parents(ctx context.Context, q db.Queryer) (map[uuid.UUID]*uuid.UUID, error) {
	parents := make(map[uuid.UUID]*uuid.UUID, len(s.roles))
	for id, r := range s.roles {
		parents[id] = r.ParentID
	}
	return parents, nil
}

func (s *memoryRoleStore) SetParent(ctx context.Context, q db.Queryer, id uuid.UUID, parentID, actor *uuid.UUID) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.ParentID = parentID
	s.roles[id] = role
	return role, nil
}

func TestAddRoleValidation(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	ctx := context.Background()

	if _, err := graph.AddRole(ctx, nil, "  ", "", nil, nil); err == nil {
		t.Fatalf("expected error for blank name")
	}
	if _, err := graph.AddRole(ctx, nil, strings.Repeat("x", 101), "", nil, nil); err == nil {
		t.Fatalf("expected error for overlong name")
	}

	ghost := uuid.New()
	if _, err := graph.AddRole(ctx, nil, "editor", "", &ghost, nil); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown parent, got %v", err)
	}

	role, err := graph.AddRole(ctx, nil, "editor", "edits things", nil, nil)
	if err != nil {
		t.Fatalf("add role: %v", err)
	}
	if role.Name != "editor" {
		t.Fatalf("unexpected role name %q", role.Name)
	}
}

func TestReparentRejectsSelf(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	id := store.add("editor", nil)

	if _, _, err := graph.Reparent(context.Background(), nil, id, &id, nil); !errors.Is(err, shared.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if store.roles[id].ParentID != nil {
		t.Fatalf("graph mutated by rejected reparent")
	}
}

func TestReparentRejectsDescendant(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	root := store.add("admin", nil)
	mid := store.add("editor", &root)
	leaf := store.add("junior-editor", &mid)

	// Moving the root under its grandchild would close a cycle.
	if _, _, err := graph.Reparent(context.Background(), nil, root, &leaf, nil); !errors.Is(err, shared.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if store.roles[root].ParentID != nil {
		t.Fatalf("graph mutated by rejected reparent")
	}
}

func TestReparentMovesSubtree(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	root := store.add("admin", nil)
	other := store.add("support", nil)
	mid := store.add("editor", &root)

	old, updated, err := graph.Reparent(context.Background(), nil, mid, &other, nil)
	if err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if old.ParentID == nil || *old.ParentID != root {
		t.Fatalf("expected old snapshot to keep previous parent")
	}
	if updated.ParentID == nil || *updated.ParentID != other {
		t.Fatalf("expected updated parent %s", other)
	}
}

func TestReparentUnknownParent(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	id := store.add("editor", nil)
	ghost := uuid.New()

	if _, _, err := graph.Reparent(context.Background(), nil, id, &ghost, nil); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAncestorsOfOrder(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	root := store.add("admin", nil)
	mid := store.add("editor", &root)
	leaf := store.add("junior-editor", &mid)

	chain, err := graph.AncestorsOf(context.Background(), nil, leaf)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if len(chain) != 2 || chain[0] != mid || chain[1] != root {
		t.Fatalf("expected [editor admin], got %v", chain)
	}

	chain, err = graph.AncestorsOf(context.Background(), nil, root)
	if err != nil {
		t.Fatalf("ancestors of root: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("expected empty chain for root, got %v", chain)
	}
}

func TestAncestorsOfCorruptedData(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	a := store.add("a", nil)
	b := store.add("b", &a)

	// Close a cycle behind the API's back.
	role := store.roles[a]
	role.ParentID = &b
	store.roles[a] = role

	if _, err := graph.AncestorsOf(context.Background(), nil, a); !errors.Is(err, shared.ErrGraphCorruption) {
		t.Fatalf("expected ErrGraphCorruption, got %v", err)
	}
}

func TestIsAncestor(t *testing.T) {
	store := newMemoryRoleStore()
	graph := NewGraph(store)
	root := store.add("admin", nil)
	mid := store.add("editor", &root)

	ok, err := graph.IsAncestor(context.Background(), nil, root, mid)
	if err != nil {
		t.Fatalf("is ancestor: %v", err)
	}
	if !ok {
		t.Fatalf("expected admin to be an ancestor of editor")
	}
	ok, err = graph.IsAncestor(context.Background(), nil, mid, root)
	if err != nil {
		t.Fatalf("is ancestor: %v", err)
	}
	if ok {
		t.Fatalf("expected editor not to be an ancestor of admin")
	}
}
