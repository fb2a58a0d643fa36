package docver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Repository provides PostgreSQL backed persistence for document versions.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// LockDocument serializes writers of one document for the remainder of the
// transaction using an advisory lock keyed by (type, id).
func (r *Repository) LockDocument(ctx context.Context, q db.Queryer, docType, docID string) error {
	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, docType+":"+docID)
	return shared.Persistence("docver: lock document", err)
}

// MaxVersion returns the highest committed version number, 0 when none exist.
func (r *Repository) MaxVersion(ctx context.Context, q db.Queryer, docType, docID string) (int64, error) {
	var max int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_number), 0)
		FROM document_versions
		WHERE document_type = $1 AND document_id = $2`,
		docType, docID,
	).Scan(&max)
	if err != nil {
		return 0, shared.Persistence("docver: max version", err)
	}
	return max, nil
}

// Insert writes one version row. The unique constraint on (document_type,
// document_id, version_number) backstops the advisory lock.
func (r *Repository) Insert(ctx context.Context, q db.Queryer, v Version) (Version, error) {
	changes, err := marshalPayload(v.Changes)
	if err != nil {
		return Version{}, err
	}
	snapshot, err := marshalPayload(v.Snapshot)
	if err != nil {
		return Version{}, err
	}
	err = q.QueryRow(ctx, `
		INSERT INTO document_versions (document_type, document_id, version_number, changes, full_snapshot, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING version_id, changed_at`,
		v.DocumentType, v.DocumentID, v.VersionNumber, changes, snapshot, v.ChangedBy,
	).Scan(&v.ID, &v.ChangedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Version{}, err
		}
		return Version{}, shared.Persistence("docver: insert", err)
	}
	return v, nil
}

// List returns every version of a document, newest first.
func (r *Repository) List(ctx context.Context, q db.Queryer, docType, docID string) ([]Version, error) {
	rows, err := q.Query(ctx, `
		SELECT version_id, document_type, document_id, version_number, changes, full_snapshot, changed_by, changed_at
		FROM document_versions
		WHERE document_type = $1 AND document_id = $2
		ORDER BY version_number DESC`,
		docType, docID,
	)
	if err != nil {
		return nil, shared.Persistence("docver: list", err)
	}
	defer rows.Close()
	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("docver: list rows", err)
	}
	return versions, nil
}

// Get fetches one version by number.
func (r *Repository) Get(ctx context.Context, q db.Queryer, docType, docID string, number int64) (Version, error) {
	row := q.QueryRow(ctx, `
		SELECT version_id, document_type, document_id, version_number, changes, full_snapshot, changed_by, changed_at
		FROM document_versions
		WHERE document_type = $1 AND document_id = $2 AND version_number = $3`,
		docType, docID, number,
	)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, shared.ErrNotFound
		}
		return Version{}, err
	}
	return v, nil
}

func scanVersion(row pgx.Row) (Version, error) {
	var (
		v                   Version
		changesRaw, snapRaw []byte
	)
	if err := row.Scan(&v.ID, &v.DocumentType, &v.DocumentID, &v.VersionNumber, &changesRaw, &snapRaw, &v.ChangedBy, &v.ChangedAt); err != nil {
		return Version{}, err
	}
	if len(changesRaw) > 0 {
		if err := json.Unmarshal(changesRaw, &v.Changes); err != nil {
			return Version{}, err
		}
	}
	if len(snapRaw) > 0 {
		if err := json.Unmarshal(snapRaw, &v.Snapshot); err != nil {
			return Version{}, err
		}
	}
	return v, nil
}

func marshalPayload(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
