package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("record not found")

// DocumentStore is the provenance side of the pipeline. Implementations
// must be safe for concurrent use; writes are independent upserts keyed
// by document or run id.
type DocumentStore interface {
	// SaveDocument upserts an ingestion record by document id.
	SaveDocument(ctx context.Context, doc *IngestedDocument) error

	// GetByRawHash returns the most recent ingestion record for a raw
	// content hash, or ErrNotFound. The pipeline uses it to skip
	// already-processed bytes.
	GetByRawHash(ctx context.Context, rawHash string) (*IngestedDocument, error)

	// Quarantine records a quarantined document, superseding any open
	// quarantine for the same file path.
	Quarantine(ctx context.Context, q *QuarantinedDocument) error

	// AppendLog records one pipeline event.
	AppendLog(ctx context.Context, entry *IngestionLog) error

	// SaveRun upserts a run record by run id.
	SaveRun(ctx context.Context, run *IngestionRun) error

	// Close flushes and releases the store.
	Close(ctx context.Context) error
}
