// Package store persists captured snapshots. The store is append-only and
// keyed by (collection_url, page_index, scroll_index, captured_at); inserts
// with a key that already exists are silently ignored so retried operations
// and duplicate session invocations are safe.
package store

import (
	"context"

	"github.com/John-Curcio/grepl-scraper/models"
)

// SnapshotStore is the persistence surface the capture session writes to.
type SnapshotStore interface {
	// InsertIfAbsent writes the snapshot unless its key already exists.
	// Returns true when a row was written, false when the key was already
	// present. Duplicate keys are never an error and never overwrite.
	InsertIfAbsent(ctx context.Context, snap *models.Snapshot) (bool, error)

	// List returns snapshots for a collection URL ordered by
	// (page_index, scroll_index), paged by limit/offset, for resumption
	// queries and the downstream consumer.
	List(ctx context.Context, collectionURL string, limit, offset int) ([]*models.Snapshot, error)

	// MaxPageIndex reports the highest page index captured for the
	// collection URL; ok is false when nothing has been captured yet.
	MaxPageIndex(ctx context.Context, collectionURL string) (idx int, ok bool, err error)

	// Count returns the total number of stored snapshots.
	Count(ctx context.Context) (int64, error)

	Close() error
}
