package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestCatalogLoadsOnce(t *testing.T) {
	id := uuid.New()
	calls := 0
	catalog := NewCatalog(func(ctx context.Context) ([]Permission, error) {
		calls++
		return []Permission{{ID: id, Name: "users.view"}}, nil
	})
	ctx := context.Background()

	got, ok, err := catalog.Lookup(ctx, "users.view")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok || got != id {
		t.Fatalf("expected %s, got %s ok=%v", id, got, ok)
	}

	if _, _, err := catalog.Lookup(ctx, "users.view"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single load, got %d", calls)
	}

	ok, err = catalog.Has(ctx, "ghost.permission")
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if ok {
		t.Fatalf("expected unknown permission to miss")
	}
}

func TestCatalogInvalidateReloads(t *testing.T) {
	calls := 0
	catalog := NewCatalog(func(ctx context.Context) ([]Permission, error) {
		calls++
		if calls == 1 {
			return []Permission{{ID: uuid.New(), Name: "users.view"}}, nil
		}
		return []Permission{
			{ID: uuid.New(), Name: "users.view"},
			{ID: uuid.New(), Name: "users.edit"},
		}, nil
	})
	ctx := context.Background()

	if ok, err := catalog.Has(ctx, "users.edit"); err != nil || ok {
		t.Fatalf("expected users.edit absent before invalidate, got %v %v", ok, err)
	}

	catalog.Invalidate()

	if ok, err := catalog.Has(ctx, "users.edit"); err != nil || !ok {
		t.Fatalf("expected users.edit present after invalidate, got %v %v", ok, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 loads, got %d", calls)
	}
}
