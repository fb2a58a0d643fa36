package docver

import (
	"time"

	"github.com/google/uuid"
)

// Version is one immutable snapshot of a business document. VersionNumber is
// strictly increasing and gapless per (DocumentType, DocumentID).
type Version struct {
	ID            int64
	DocumentType  string
	DocumentID    string
	VersionNumber int64
	Changes       map[string]any
	Snapshot      map[string]any
	ChangedBy     *uuid.UUID
	ChangedAt     time.Time
}
