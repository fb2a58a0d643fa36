package acl

import (
	"context"
	"sync"
)

// DescendantResolver answers containment queries for one object type. Each
// object domain (documents, tasks, employees) owns its own hierarchy and
// registers a resolver here; the authorization core never invents traversal
// semantics.
type DescendantResolver interface {
	IsDescendant(ctx context.Context, parentID, childID string) (bool, error)
}

// HierarchyRegistry routes IsDescendantObject calls to the resolver registered
// for the object type. Types without a resolver behave as row-only: cascade
// entries on them never match descendants.
type HierarchyRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]DescendantResolver
}

// NewHierarchyRegistry builds an empty registry.
func NewHierarchyRegistry() *HierarchyRegistry {
	return &HierarchyRegistry{resolvers: make(map[string]DescendantResolver)}
}

// Register installs the resolver for an object type, replacing any previous one.
func (h *HierarchyRegistry) Register(objectType string, resolver DescendantResolver) {
	h.mu.Lock()
	h.resolvers[objectType] = resolver
	h.mu.Unlock()
}

// IsDescendantObject reports whether childID sits below parentID within the
// object type's hierarchy.
func (h *HierarchyRegistry) IsDescendantObject(ctx context.Context, objectType, parentID, childID string) (bool, error) {
	h.mu.RLock()
	resolver, ok := h.resolvers[objectType]
	h.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return resolver.IsDescendant(ctx, parentID, childID)
}
