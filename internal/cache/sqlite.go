package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/joescharf/ftpsync/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// Each Put is a durable upsert, so a crash mid-cycle leaves the store
// consistent with the last fully downloaded file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path and verifies it is
// usable. Any failure here means the store is missing or corrupt; callers
// should treat that as an empty cache, not an error condition for the session.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access through Go's pool and avoids "database is locked".
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Probe query so corruption surfaces now rather than mid-cycle.
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM fingerprints").Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("probe cache database: %w", err)
	}

	return s, nil
}

// migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]models.FingerprintEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, mod_time, fingerprint, recorded_at FROM fingerprints`)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]models.FingerprintEntry)
	for rows.Next() {
		var e models.FingerprintEntry
		var fp string
		if err := rows.Scan(&e.Path, &e.Size, &e.ModTimeUnix, &fp, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		v, err := strconv.ParseUint(fp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse fingerprint for %s: %w", e.Path, err)
		}
		e.Fingerprint = v
		entries[e.Path] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) Put(ctx context.Context, entry models.FingerprintEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	// Fingerprints are stored as decimal text: SQLite INTEGER is signed
	// 64-bit and would mangle the top bit of a uint64 digest.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (path, size, mod_time, fingerprint, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			fingerprint = excluded.fingerprint,
			recorded_at = excluded.recorded_at`,
		entry.Path, entry.Size, entry.ModTimeUnix,
		strconv.FormatUint(entry.Fingerprint, 10), entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("put fingerprint %s: %w", entry.Path, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints`); err != nil {
		return fmt.Errorf("clear fingerprints: %w", err)
	}
	return nil
}

// Flush is a no-op: every Put is already durable.
func (s *SQLiteStore) Flush(ctx context.Context) error { return nil }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
