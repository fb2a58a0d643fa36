package rbac

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the full permission catalog from the store.
type CatalogLoader func(ctx context.Context) ([]Permission, error)

// Catalog is a process-wide cache of the permission catalog with an explicit
// load/invalidate lifecycle. Mutating services call Invalidate synchronously
// after committing a catalog change, so staleness never outlives the mutation.
type Catalog struct {
	load CatalogLoader

	mu     sync.RWMutex
	byName map[string]uuid.UUID
	loaded bool

	group singleflight.Group
}

// NewCatalog builds an empty catalog; the first lookup populates it.
func NewCatalog(load CatalogLoader) *Catalog {
	return &Catalog{load: load}
}

// Lookup resolves a permission name to its id.
func (c *Catalog) Lookup(ctx context.Context, name string) (uuid.UUID, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return uuid.Nil, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	return id, ok, nil
}

// Has reports whether the permission name exists in the catalog.
func (c *Catalog) Has(ctx context.Context, name string) (bool, error) {
	_, ok, err := c.Lookup(ctx, name)
	return ok, err
}

// Invalidate drops the cached catalog; the next lookup reloads it.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.byName = nil
	c.mu.Unlock()
}

func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	// Collapse concurrent reloads into one catalog query.
	_, err, _ := c.group.Do("load", func() (any, error) {
		perms, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		byName := make(map[string]uuid.UUID, len(perms))
		for _, p := range perms {
			byName[p.Name] = p.ID
		}
		c.mu.Lock()
		c.byName = byName
		c.loaded = true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}
