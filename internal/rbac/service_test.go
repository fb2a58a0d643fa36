package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakePool struct {
	db.Queryer
	lastTx *fakeTx
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.lastTx = &fakeTx{}
	return p.lastTx, nil
}

var errAuditDown = errors.New("audit insert failed")

type memoryBindingStore struct {
	permissions map[uuid.UUID]Permission
	rolePerms   map[uuid.UUID]map[uuid.UUID]struct{}
	userRoles   map[uuid.UUID]map[uuid.UUID]struct{}
}

func newMemoryBindingStore() *memoryBindingStore {
	return &memoryBindingStore{
		permissions: make(map[uuid.UUID]Permission),
		rolePerms:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		userRoles:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

func (s *memoryBindingStore) ListPermissions(ctx context.Context, q db.Queryer) ([]Permission, error) {
	out := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	return out, nil
}

func (s *memoryBindingStore) UpsertPermission(ctx context.Context, q db.Queryer, name, description string, actor *uuid.UUID) (Permission, error) {
	for id, p := range s.permissions {
		if p.Name == name {
			p.Description = description
			s.permissions[id] = p
			return p, nil
		}
	}
	p := Permission{ID: uuid.New(), Name: name, Description: description}
	s.permissions[p.ID] = p
	return p, nil
}

func (s *memoryBindingStore) RolePermissionIDs(ctx context.Context, q db.Queryer, roleID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id := range s.rolePerms[roleID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *memoryBindingStore) AttachPermission(ctx context.Context, q db.Queryer, roleID, permissionID uuid.UUID, actor *uuid.UUID) error {
	if s.rolePerms[roleID] == nil {
		s.rolePerms[roleID] = make(map[uuid.UUID]struct{})
	}
	s.rolePerms[roleID][permissionID] = struct{}{}
	return nil
}

func (s *memoryBindingStore) DetachPermission(ctx context.Context, q db.Queryer, roleID, permissionID uuid.UUID) error {
	delete(s.rolePerms[roleID], permissionID)
	return nil
}

func (s *memoryBindingStore) AssignRole(ctx context.Context, q db.Queryer, userID, roleID uuid.UUID, actor *uuid.UUID) error {
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[uuid.UUID]struct{})
	}
	s.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (s *memoryBindingStore) RemoveRole(ctx context.Context, q db.Queryer, userID, roleID uuid.UUID) error {
	delete(s.userRoles[userID], roleID)
	return nil
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

func newBindingService() (*Service, *memoryBindingStore, *recordingAuditor, *fakePool) {
	store := newMemoryBindingStore()
	auditor := &recordingAuditor{}
	pool := &fakePool{}
	return NewService(pool, store, auditor, nil), store, auditor, pool
}

func TestEnsurePermission(t *testing.T) {
	service, store, auditor, _ := newBindingService()
	ctx := context.Background()

	perm, err := service.EnsurePermission(ctx, " documents.view ", "Read documents", nil)
	require.NoError(t, err)
	require.Equal(t, "documents.view", perm.Name)

	again, err := service.EnsurePermission(ctx, "documents.view", "Read documents and versions", nil)
	require.NoError(t, err)
	require.Equal(t, perm.ID, again.ID, "upsert must not mint a second id")
	require.Len(t, store.permissions, 1)

	require.Len(t, auditor.entries, 2)
	require.Equal(t, audit.ActionCreate, auditor.entries[0].Action)

	_, err = service.EnsurePermission(ctx, "   ", "", nil)
	require.Error(t, err)
}

func TestSetRolePermissionsReconciles(t *testing.T) {
	service, store, auditor, _ := newBindingService()
	ctx := context.Background()
	role := uuid.New()
	keep := uuid.New()
	drop := uuid.New()
	add := uuid.New()

	require.NoError(t, store.AttachPermission(ctx, nil, role, keep, nil))
	require.NoError(t, store.AttachPermission(ctx, nil, role, drop, nil))

	require.NoError(t, service.SetRolePermissions(ctx, role, []uuid.UUID{keep, add}, nil))

	require.Contains(t, store.rolePerms[role], keep)
	require.Contains(t, store.rolePerms[role], add)
	require.NotContains(t, store.rolePerms[role], drop)

	entry := auditor.entries[len(auditor.entries)-1]
	require.Equal(t, audit.ActionSetPerms, entry.Action)
	require.Equal(t, role.String(), entry.EntityID)
	require.Len(t, entry.OldValue["permission_ids"], 2)
	require.Len(t, entry.NewValue["permission_ids"], 2)
}

func TestAssignRoleRollsBackWhenAuditFails(t *testing.T) {
	service, _, auditor, pool := newBindingService()
	auditor.fail = errAuditDown

	err := service.AssignRole(context.Background(), uuid.New(), uuid.New(), nil)
	require.Error(t, err)
	require.False(t, pool.lastTx.committed, "expected transaction not committed")
}

func TestAssignAndRemoveRole(t *testing.T) {
	service, store, auditor, _ := newBindingService()
	ctx := context.Background()
	user := uuid.New()
	role := uuid.New()
	actor := uuid.New()

	require.NoError(t, service.AssignRole(ctx, user, role, &actor))
	require.Contains(t, store.userRoles[user], role)
	require.Equal(t, audit.ActionAssignRole, auditor.entries[0].Action)
	require.Equal(t, &actor, auditor.entries[0].ActorID)

	require.NoError(t, service.RemoveRole(ctx, user, role, &actor))
	require.NotContains(t, store.userRoles[user], role)
	require.Equal(t, audit.ActionRemoveRole, auditor.entries[1].Action)
	require.Equal(t, user.String(), auditor.entries[1].EntityID)
}
