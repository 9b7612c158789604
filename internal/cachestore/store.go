// Package cachestore indexes dependency caches in SQLite so reuse can be
// observed across runs and stale caches can be garbage collected.
package cachestore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one indexed dependency cache.
type Entry struct {
	Key       string
	Toolchain string
	Path      string
	SizeBytes int64
	CreatedAt time.Time
	LastUsed  time.Time
}

// Store is a SQLite-backed cache index.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the index at dbPath. Use ":memory:" for
// an ephemeral index in tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache index schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS caches (
		key TEXT PRIMARY KEY,
		toolchain TEXT NOT NULL,
		path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_used INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_last_used ON caches(last_used);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts or replaces an entry.
func (s *Store) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO caches (key, toolchain, path, size_bytes, created_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Key, e.Toolchain, e.Path, e.SizeBytes, e.CreatedAt.Unix(), e.LastUsed.Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording cache entry: %w", err)
	}
	return nil
}

// Touch bumps an entry's last-used timestamp. Touching an unindexed key is a
// no-op: the cache still works, it just cannot be aged.
func (s *Store) Touch(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE caches SET last_used = ? WHERE key = ?`, time.Now().Unix(), key)
	if err != nil {
		return fmt.Errorf("touching cache entry: %w", err)
	}
	return nil
}

// List returns all entries ordered by last use, most recent first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT key, toolchain, path, size_bytes, created_at, last_used
		 FROM caches ORDER BY last_used DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created, used int64
		if err := rows.Scan(&e.Key, &e.Toolchain, &e.Path, &e.SizeBytes, &created, &used); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		e.LastUsed = time.Unix(used, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry from the index.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM caches WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
