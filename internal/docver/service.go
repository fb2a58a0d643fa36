package docver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/audit"
	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// snapshotRetries bounds how often a write-write race is retried with a fresh
// read of the max version before surfacing shared.ErrVersionConflict.
const snapshotRetries = 3

// Store defines the persistence the versioner needs.
type Store interface {
	LockDocument(ctx context.Context, q db.Queryer, docType, docID string) error
	MaxVersion(ctx context.Context, q db.Queryer, docType, docID string) (int64, error)
	Insert(ctx context.Context, q db.Queryer, v Version) (Version, error)
	List(ctx context.Context, q db.Queryer, docType, docID string) ([]Version, error)
	Get(ctx context.Context, q db.Queryer, docType, docID string, number int64) (Version, error)
}

// Auditor records privileged mutations inside the caller's transaction.
type Auditor interface {
	Record(ctx context.Context, q db.Queryer, e audit.Entry) (int64, error)
}

// RetryCounter observes snapshot attempts retried after contention.
type RetryCounter interface {
	CountVersionRetry()
}

// Versioner snapshots mutable business documents. Concurrent writers of the
// same document are serialized by an advisory lock so version numbers stay
// gapless; the unique constraint is the backstop.
type Versioner struct {
	pool    db.Pool
	store   Store
	auditor Auditor
	retries RetryCounter
}

// NewVersioner builds a Versioner. retries may be nil.
func NewVersioner(pool db.Pool, store Store, auditor Auditor, retries RetryCounter) *Versioner {
	return &Versioner{pool: pool, store: store, auditor: auditor, retries: retries}
}

// Snapshot writes the next version of the document and returns its number.
func (v *Versioner) Snapshot(ctx context.Context, docType, docID string, actor *uuid.UUID, changes, fullSnapshot map[string]any) (int64, error) {
	if docType == "" || docID == "" {
		return 0, errors.New("docver: document type and id required")
	}

	var number int64
	for attempt := 0; attempt < snapshotRetries; attempt++ {
		err := db.WithSerializableTx(ctx, v.pool, func(tx pgx.Tx) error {
			if err := v.store.LockDocument(ctx, tx, docType, docID); err != nil {
				return err
			}
			max, err := v.store.MaxVersion(ctx, tx, docType, docID)
			if err != nil {
				return err
			}
			inserted, err := v.store.Insert(ctx, tx, Version{
				DocumentType:  docType,
				DocumentID:    docID,
				VersionNumber: max + 1,
				Changes:       changes,
				Snapshot:      fullSnapshot,
				ChangedBy:     actor,
			})
			if err != nil {
				return err
			}
			number = inserted.VersionNumber
			_, err = v.auditor.Record(ctx, tx, audit.Entry{
				ActorID:  actor,
				Action:   audit.ActionSnapshot,
				Entity:   "document_versions",
				EntityID: strconv.FormatInt(inserted.ID, 10),
				NewValue: map[string]any{
					"document_type":  docType,
					"document_id":    docID,
					"version_number": inserted.VersionNumber,
				},
				Meta: shared.RequestMetaFromContext(ctx),
			})
			return err
		})
		if err == nil {
			return number, nil
		}
		if db.IsUniqueViolation(err) || db.IsSerializationFailure(err) {
			if v.retries != nil {
				v.retries.CountVersionRetry()
			}
			continue
		}
		return 0, err
	}
	return 0, fmt.Errorf("docver: %s/%s: %w", docType, docID, shared.ErrVersionConflict)
}

// List returns every version of the document, newest first.
func (v *Versioner) List(ctx context.Context, docType, docID string) ([]Version, error) {
	return v.store.List(ctx, v.pool, docType, docID)
}

// Get fetches one version by number.
func (v *Versioner) Get(ctx context.Context, docType, docID string, number int64) (Version, error) {
	return v.store.Get(ctx, v.pool, docType, docID, number)
}
