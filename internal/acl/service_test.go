package acl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	db.Queryer
	lastTx *fakeTx
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.lastTx = &fakeTx{}
	return p.lastTx, nil
}

type memoryGrantStore struct {
	types  map[string]ObjectType
	grants map[uuid.UUID]ObjectPermission
}

func newMemoryGrantStore() *memoryGrantStore {
	return &memoryGrantStore{
		types:  make(map[string]ObjectType),
		grants: make(map[uuid.UUID]ObjectPermission),
	}
}

func (s *memoryGrantStore) LookupObjectType(ctx context.Context, q db.Queryer, name string) (ObjectType, error) {
	ot, ok := s.types[name]
	if !ok {
		return ObjectType{}, shared.ErrUnknownObjectType
	}
	return ot, nil
}

func (s *memoryGrantStore) RegisterObjectType(ctx context.Context, q db.Queryer, name, description string) (ObjectType, error) {
	if ot, ok := s.types[name]; ok {
		ot.Description = description
		s.types[name] = ot
		return ot, nil
	}
	ot := ObjectType{ID: uuid.New(), Name: name, Description: description}
	s.types[name] = ot
	return ot, nil
}

func (s *memoryGrantStore) ListObjectTypes(ctx context.Context, q db.Queryer) ([]ObjectType, error) {
	out := make([]ObjectType, 0, len(s.types))
	for _, ot := range s.types {
		out = append(out, ot)
	}
	return out, nil
}

func (s *memoryGrantStore) Insert(ctx context.Context, q db.Queryer, p ObjectPermission) (ObjectPermission, error) {
	p.ID = uuid.New()
	p.GrantedAt = time.Now().UTC()
	p.IsActive = true
	s.grants[p.ID] = p
	return p, nil
}

func (s *memoryGrantStore) Get(ctx context.Context, q db.Queryer, id uuid.UUID) (ObjectPermission, error) {
	p, ok := s.grants[id]
	if !ok {
		return ObjectPermission{}, shared.ErrNotFound
	}
	return p, nil
}

func (s *memoryGrantStore) MarkRevoked(ctx context.Context, q db.Queryer, id uuid.UUID) (ObjectPermission, error) {
	p, ok := s.grants[id]
	if !ok {
		return ObjectPermission{}, shared.ErrNotFound
	}
	now := time.Now().UTC()
	p.RevokedAt = &now
	p.IsActive = false
	s.grants[id] = p
	return p, nil
}

func (s *memoryGrantStore) ListActive(ctx context.Context, q db.Queryer, typeName, objectID string) ([]ObjectPermission, error) {
	var out []ObjectPermission
	for _, p := range s.grants {
		if p.ObjectType == typeName && p.ObjectID == objectID && !p.Revoked() {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingAuditor struct {
	entries []audit.Entry
	fail    error
}

func (a *recordingAuditor) Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error) {
	if a.fail != nil {
		return 0, a.fail
	}
	a.entries = append(a.entries, e)
	return int64(len(a.entries)), nil
}

func newTestEngine() (*Engine, *memoryGrantStore, *recordingAuditor, *fakePool) {
	store := newMemoryGrantStore()
	auditor := &recordingAuditor{}
	pool := &fakePool{}
	return NewEngine(pool, store, auditor), store, auditor, pool
}

func TestGrantRequiresExactlyOneSubject(t *testing.T) {
	engine, _, auditor, _ := newTestEngine()
	ctx := context.Background()
	user := uuid.New()
	role := uuid.New()

	_, err := engine.Grant(ctx, GrantParams{UserID: &user, RoleID: &role, ObjectType: "document", ObjectID: "1", PermissionID: uuid.New()})
	if !errors.Is(err, shared.ErrAmbiguousSubject) {
		t.Fatalf("expected ErrAmbiguousSubject, got %v", err)
	}

	_, err = engine.Grant(ctx, GrantParams{ObjectType: "document", ObjectID: "1", PermissionID: uuid.New()})
	if !errors.Is(err, shared.ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}

	if len(auditor.entries) != 0 {
		t.Fatalf("expected no audit rows for rejected grants, got %d", len(auditor.entries))
	}
}

func TestGrantRejectsUnknownObjectType(t *testing.T) {
	engine, _, _, pool := newTestEngine()
	user := uuid.New()

	_, err := engine.Grant(context.Background(), GrantParams{UserID: &user, ObjectType: "ghost", ObjectID: "1", PermissionID: uuid.New()})
	if !errors.Is(err, shared.ErrUnknownObjectType) {
		t.Fatalf("expected ErrUnknownObjectType, got %v", err)
	}
	if pool.lastTx == nil || pool.lastTx.committed {
		t.Fatalf("expected transaction rollback")
	}
}

func TestGrantDefaultsToRowScopeAndAudits(t *testing.T) {
	engine, store, auditor, pool := newTestEngine()
	store.types["document"] = ObjectType{ID: uuid.New(), Name: "document"}
	user := uuid.New()

	grant, err := engine.Grant(context.Background(), GrantParams{
		UserID:       &user,
		ObjectType:   "document",
		ObjectID:     "42",
		PermissionID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if grant.AppliesTo != ScopeRow {
		t.Fatalf("expected default row scope, got %q", grant.AppliesTo)
	}
	if !grant.IsActive {
		t.Fatalf("expected active grant")
	}
	if len(auditor.entries) != 1 || auditor.entries[0].Action != audit.ActionGrant {
		t.Fatalf("expected one GRANT audit entry, got %+v", auditor.entries)
	}
	if !pool.lastTx.committed {
		t.Fatalf("expected transaction commit")
	}
}

func TestGrantRejectsBadScope(t *testing.T) {
	engine, store, _, _ := newTestEngine()
	store.types["document"] = ObjectType{ID: uuid.New(), Name: "document"}
	user := uuid.New()

	_, err := engine.Grant(context.Background(), GrantParams{
		UserID:       &user,
		ObjectType:   "document",
		ObjectID:     "42",
		PermissionID: uuid.New(),
		AppliesTo:    "subtree",
	})
	if err == nil {
		t.Fatalf("expected error for invalid applies_to")
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	engine, store, auditor, _ := newTestEngine()
	store.types["document"] = ObjectType{ID: uuid.New(), Name: "document"}
	user := uuid.New()
	ctx := context.Background()

	grant, err := engine.Grant(ctx, GrantParams{UserID: &user, ObjectType: "document", ObjectID: "42", PermissionID: uuid.New()})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := engine.Revoke(ctx, grant.ID, nil); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if store.grants[grant.ID].IsActive {
		t.Fatalf("expected grant inactive after revoke")
	}
	if store.grants[grant.ID].RevokedAt == nil {
		t.Fatalf("expected revoked_at stamped")
	}

	firstRevokedAt := *store.grants[grant.ID].RevokedAt
	if err := engine.Revoke(ctx, grant.ID, nil); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if !store.grants[grant.ID].RevokedAt.Equal(firstRevokedAt) {
		t.Fatalf("expected second revoke not to touch the row")
	}

	// One GRANT plus one REVOKE; the no-op revoke records nothing.
	if len(auditor.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(auditor.entries))
	}
	if auditor.entries[1].Action != audit.ActionRevoke {
		t.Fatalf("expected REVOKE entry, got %s", auditor.entries[1].Action)
	}
}

func TestGrantRollsBackWhenAuditFails(t *testing.T) {
	engine, store, auditor, pool := newTestEngine()
	store.types["document"] = ObjectType{ID: uuid.New(), Name: "document"}
	auditor.fail = errors.New("audit insert failed")
	user := uuid.New()

	_, err := engine.Grant(context.Background(), GrantParams{
		UserID:       &user,
		ObjectType:   "document",
		ObjectID:     "42",
		PermissionID: uuid.New(),
	})
	if err == nil {
		t.Fatalf("expected error when audit record fails")
	}
	if pool.lastTx.committed {
		t.Fatalf("expected transaction not committed")
	}
	if !pool.lastTx.rolledBack {
		t.Fatalf("expected transaction rolled back")
	}
}

func TestRevokeUnknownGrant(t *testing.T) {
	engine, _, _, _ := newTestEngine()
	if err := engine.Revoke(context.Background(), uuid.New(), nil); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
