package models

// FileEntry is a single file in a source snapshot.
type FileEntry struct {
	// Path is slash-separated and relative to the workspace root.
	Path string `json:"path"`
	Hash string `json:"hash"` // sha256 of content
	Size int64  `json:"size"`
	Mode uint32 `json:"mode"`
}

// Snapshot is a filtered, content-addressed view of the source tree. Entries
// are ordered by path, so Hash is stable across re-snapshots of an unchanged
// tree. A snapshot is immutable once taken; tasks read files through it but
// never write back.
type Snapshot struct {
	Root    string      `json:"root"`
	Hash    string      `json:"hash"` // sha256 over the ordered (path, hash) pairs
	Entries []FileEntry `json:"entries"`
}

// Lookup returns the entry for a relative path, if present.
func (s *Snapshot) Lookup(path string) (FileEntry, bool) {
	for _, e := range s.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return FileEntry{}, false
}

// ShortHash returns a truncated snapshot hash for logs and directory names.
func (s *Snapshot) ShortHash() string {
	if len(s.Hash) > 12 {
		return s.Hash[:12]
	}
	return s.Hash
}
