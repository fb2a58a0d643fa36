package docver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

type fakeTx struct {
	pgx.Tx
	committed bool
	onDone    func()
	once      sync.Once
}

func (t *fakeTx) finish() {
	if t.onDone != nil {
		t.once.Do(t.onDone)
	}
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	t.finish()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.finish()
	return nil
}

type fakePool struct {
	db.Queryer
	mu     sync.Mutex
	lastTx *fakeTx
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	p.mu.Lock()
	p.lastTx = tx
	p.mu.Unlock()
	return tx, nil
}

// memoryVersionStore can inject a fixed number of insert failures to exercise
// the retry loop.
type memoryVersionStore struct {
	versions    map[string][]Version
	failInserts int
	insertErr   error
	inserts     int
}

func newMemoryVersionStore() *memoryVersionStore {
	return &memoryVersionStore{versions: make(map[string][]Version)}
}

func docKey(docType, docID string) string { return docType + "/" + docID }

func (s *memoryVersionStore) LockDocument(ctx context.Context, q db.Queryer, docType, docID string) error {
	return nil
}

func (s *memoryVersionStore) MaxVersion(ctx context.Context, q db.Queryer, docType, docID string) (int64, error) {
	rows := s.versions[docKey(docType, docID)]
	var max int64
	for _, v := range rows {
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max, nil
}

func (s *memoryVersionStore) Insert(ctx context.Context, q db.Queryer, v Version) (Version, error) {
	s.inserts++
	if s.failInserts > 0 {
		s.failInserts--
		return Version{}, s.insertErr
	}
	v.ID = int64(s.inserts)
	v.ChangedAt = time.Now().UTC()
	key := docKey(v.DocumentType, v.DocumentID)
	s.versions[key] = append(s.versions[key], v)
	return v, nil
}

func (s *memoryVersionStore) List(ctx context.Context, q db.Queryer, docType, docID string) ([]Version, error) {
	rows := s.versions[docKey(docType, docID)]
	out := make([]Version, len(rows))
	copy(out, rows)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *memoryVersionStore) Get(ctx context.Context, q db.Queryer, docType, docID string, number int64) (Version, error) {
	for _, v := range s.versions[docKey(docType, docID)] {
		if v.VersionNumber == number {
			return v, nil
		}
	}
	return Version{}, shared.ErrNotFound
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	fail    error
}

func (a *recordingAuditor) Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error) {
	if a.fail != nil {
		return 0, a.fail
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return int64(len(a.entries)), nil
}

type countingRetries struct {
	n int
}

func (c *countingRetries) CountVersionRetry() { c.n++ }

func uniqueViolation() error {
	return fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
}

func TestSnapshotAssignsSequentialNumbers(t *testing.T) {
	store := newMemoryVersionStore()
	versioner := NewVersioner(&fakePool{}, store, &recordingAuditor{}, nil)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := versioner.Snapshot(ctx, "invoice", "INV-7", nil, map[string]any{"status": "draft"}, nil)
		if err != nil {
			t.Fatalf("snapshot %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected version %d, got %d", want, got)
		}
	}

	rows, err := versioner.List(ctx, "invoice", "INV-7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 || rows[0].VersionNumber != 3 {
		t.Fatalf("expected 3 versions newest first, got %+v", rows)
	}
}

func TestSnapshotIsolatesDocuments(t *testing.T) {
	store := newMemoryVersionStore()
	versioner := NewVersioner(&fakePool{}, store, &recordingAuditor{}, nil)
	ctx := context.Background()

	if _, err := versioner.Snapshot(ctx, "invoice", "INV-1", nil, nil, nil); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	got, err := versioner.Snapshot(ctx, "invoice", "INV-2", nil, nil, nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected numbering per document, got %d", got)
	}
}

func TestSnapshotRecordsAuditEntry(t *testing.T) {
	store := newMemoryVersionStore()
	auditor := &recordingAuditor{}
	versioner := NewVersioner(&fakePool{}, store, auditor, nil)

	if _, err := versioner.Snapshot(context.Background(), "invoice", "INV-7", nil, nil, nil); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(auditor.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(auditor.entries))
	}
	entry := auditor.entries[0]
	if entry.Action != audit.ActionSnapshot || entry.Entity != "document_versions" {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.NewValue["version_number"] != int64(1) {
		t.Fatalf("expected version number in audit payload, got %+v", entry.NewValue)
	}
}

func TestSnapshotRollsBackWhenAuditFails(t *testing.T) {
	store := newMemoryVersionStore()
	auditor := &recordingAuditor{fail: errors.New("audit insert failed")}
	pool := &fakePool{}
	versioner := NewVersioner(pool, store, auditor, nil)

	_, err := versioner.Snapshot(context.Background(), "invoice", "INV-7", nil, nil, nil)
	if err == nil {
		t.Fatalf("expected error when audit record fails")
	}
	if pool.lastTx.committed {
		t.Fatalf("expected transaction not committed")
	}
}

func TestSnapshotRetriesOnUniqueViolation(t *testing.T) {
	store := newMemoryVersionStore()
	store.failInserts = 1
	store.insertErr = uniqueViolation()
	retries := &countingRetries{}
	versioner := NewVersioner(&fakePool{}, store, &recordingAuditor{}, retries)

	got, err := versioner.Snapshot(context.Background(), "invoice", "INV-7", nil, nil, nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected version 1 after retry, got %d", got)
	}
	if retries.n != 1 {
		t.Fatalf("expected 1 counted retry, got %d", retries.n)
	}
}

func TestSnapshotGivesUpAfterBoundedRetries(t *testing.T) {
	store := newMemoryVersionStore()
	store.failInserts = snapshotRetries
	store.insertErr = uniqueViolation()
	versioner := NewVersioner(&fakePool{}, store, &recordingAuditor{}, nil)

	_, err := versioner.Snapshot(context.Background(), "invoice", "INV-7", nil, nil, nil)
	if !errors.Is(err, shared.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if store.inserts != snapshotRetries {
		t.Fatalf("expected %d attempts, got %d", snapshotRetries, store.inserts)
	}
}

func TestSnapshotDoesNotRetryOtherErrors(t *testing.T) {
	store := newMemoryVersionStore()
	store.failInserts = 1
	store.insertErr = errors.New("disk full")
	versioner := NewVersioner(&fakePool{}, store, &recordingAuditor{}, nil)

	_, err := versioner.Snapshot(context.Background(), "invoice", "INV-7", nil, nil, nil)
	if err == nil || errors.Is(err, shared.ErrVersionConflict) {
		t.Fatalf("expected the store error surfaced unchanged, got %v", err)
	}
	if store.inserts != 1 {
		t.Fatalf("expected a single attempt, got %d", store.inserts)
	}
}

func TestSnapshotValidatesReference(t *testing.T) {
	versioner := NewVersioner(&fakePool{}, newMemoryVersionStore(), &recordingAuditor{}, nil)
	if _, err := versioner.Snapshot(context.Background(), "", "INV-7", nil, nil, nil); err == nil {
		t.Fatalf("expected error for blank document type")
	}
	if _, err := versioner.Snapshot(context.Background(), "invoice", "", nil, nil, nil); err == nil {
		t.Fatalf("expected error for blank document id")
	}
}

// concurrentStore honors LockDocument the way the advisory lock does: the
// per-document mutex is held until the surrounding transaction finishes.
type concurrentStore struct {
	mu       sync.Mutex
	versions map[string][]Version
	nextID   int64

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func newConcurrentStore() *concurrentStore {
	return &concurrentStore{
		versions: make(map[string][]Version),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *concurrentStore) lockFor(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.locks[key] == nil {
		s.locks[key] = &sync.Mutex{}
	}
	return s.locks[key]
}

func (s *concurrentStore) LockDocument(ctx context.Context, q db.Queryer, docType, docID string) error {
	m := s.lockFor(docKey(docType, docID))
	m.Lock()
	if tx, ok := q.(*fakeTx); ok {
		tx.onDone = m.Unlock
	}
	return nil
}

func (s *concurrentStore) MaxVersion(ctx context.Context, q db.Queryer, docType, docID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, v := range s.versions[docKey(docType, docID)] {
		if v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max, nil
}

func (s *concurrentStore) Insert(ctx context.Context, q db.Queryer, v Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := docKey(v.DocumentType, v.DocumentID)
	for _, existing := range s.versions[key] {
		if existing.VersionNumber == v.VersionNumber {
			return Version{}, uniqueViolation()
		}
	}
	s.nextID++
	v.ID = s.nextID
	v.ChangedAt = time.Now().UTC()
	s.versions[key] = append(s.versions[key], v)
	return v, nil
}

func (s *concurrentStore) List(ctx context.Context, q db.Queryer, docType, docID string) ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.versions[docKey(docType, docID)]
	out := make([]Version, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *concurrentStore) Get(ctx context.Context, q db.Queryer, docType, docID string, number int64) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[docKey(docType, docID)] {
		if v.VersionNumber == number {
			return v, nil
		}
	}
	return Version{}, shared.ErrNotFound
}

func TestSnapshotConcurrentWritersStayGapless(t *testing.T) {
	const writers = 16
	store := newConcurrentStore()
	versioner := NewVersioner(&fakePool{}, store, &recordingAuditor{}, nil)

	numbers := make(chan int64, writers)
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := versioner.Snapshot(context.Background(), "invoice", "INV-7", nil, nil, nil)
			if err != nil {
				errs <- err
				return
			}
			numbers <- n
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent snapshot: %v", err)
	}
	var got []int64
	for n := range numbers {
		got = append(got, n)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != writers {
		t.Fatalf("expected %d versions, got %d", writers, len(got))
	}
	for i, n := range got {
		if n != int64(i+1) {
			t.Fatalf("expected gapless numbering 1..%d, got %v", writers, got)
		}
	}
}
