// Package cache persists remote-file fingerprints between poll cycles. The
// cache decides what to (re)download: a listing entry whose fingerprint
// matches its cached row is unchanged and skipped.
//
// A missing or corrupt persisted store is never fatal. Callers fall back to
// the in-memory store, which forces a full download pass on the next cycle.
package cache

import (
	"context"

	"github.com/joescharf/ftpsync/internal/models"
)

// Store is the persistence interface for the change-detection cache.
// Implementations guarantee at most one entry per remote path; Put upserts.
type Store interface {
	// Load reads every entry. Called once at worker start.
	Load(ctx context.Context) (map[string]models.FingerprintEntry, error)

	// Put upserts the entry for its path, durably before returning.
	Put(ctx context.Context, entry models.FingerprintEntry) error

	// Clear removes all entries, forcing a full re-download next cycle.
	Clear(ctx context.Context) error

	// Flush is the end-of-cycle checkpoint for stores that buffer writes.
	Flush(ctx context.Context) error

	Close() error
}
