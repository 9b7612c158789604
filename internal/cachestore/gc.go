package cachestore

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// PrunePolicy controls which caches Prune removes.
type PrunePolicy struct {
	// MaxAge removes entries whose last use is older than this.
	MaxAge time.Duration
	// Keep is the number of most recently used entries that are always
	// retained regardless of age.
	Keep int
}

// Prune deletes stale caches from disk and from the index, returning the
// removed entries. The most recently used caches are kept even past MaxAge so
// an infrequently built project never loses its warm start entirely.
func (s *Store) Prune(policy PrunePolicy) ([]Entry, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-policy.MaxAge)

	var pruned []Entry
	for i, e := range entries {
		if i < policy.Keep {
			continue
		}
		if e.LastUsed.After(cutoff) {
			continue
		}

		if err := os.RemoveAll(e.Path); err != nil {
			return pruned, fmt.Errorf("removing cache %s: %w", e.Path, err)
		}
		if err := s.Delete(e.Key); err != nil {
			return pruned, err
		}

		slog.Info("pruned dependency cache",
			"key", shortKey(e.Key),
			"last_used", e.LastUsed.Format(time.RFC3339),
			"size_bytes", e.SizeBytes)
		pruned = append(pruned, e)
	}

	return pruned, nil
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
