package cache

import (
	"context"
	"time"

	"github.com/joescharf/ftpsync/internal/models"
)

// MemoryStore is the cold-start fallback when the persisted store cannot be
// opened. It starts empty, so the first cycle re-downloads everything, and
// nothing survives the process.
type MemoryStore struct {
	entries map[string]models.FingerprintEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.FingerprintEntry)}
}

func (m *MemoryStore) Load(ctx context.Context) (map[string]models.FingerprintEntry, error) {
	out := make(map[string]models.FingerprintEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, entry models.FingerprintEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	m.entries[entry.Path] = entry
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.entries = make(map[string]models.FingerprintEntry)
	return nil
}

func (m *MemoryStore) Flush(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
