package models

import "time"

// DepCache is a reusable compiled-artifact bundle for the external dependency
// graph only. Key is derived from the manifest and lock content plus the
// toolchain identity; nothing else in the source tree participates, so
// application-code edits never invalidate a cache. Once built it is read-only
// and shared by every task in the run.
type DepCache struct {
	Key       string    `json:"key"`
	Toolchain string    `json:"toolchain"` // toolchain identity the cache was built with
	TargetDir string    `json:"target_dir"`
	Reused    bool      `json:"reused"` // true when a prior run produced it
	CreatedAt time.Time `json:"created_at"`
}

// ShortKey returns a truncated cache key for logs and directory names.
func (c DepCache) ShortKey() string {
	if len(c.Key) > 12 {
		return c.Key[:12]
	}
	return c.Key
}
