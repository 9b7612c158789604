package cachestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(key string, lastUsed time.Time, path string) Entry {
	return Entry{
		Key:       key,
		Toolchain: "tc-identity",
		Path:      path,
		SizeBytes: 1 << 20,
		CreatedAt: lastUsed,
		LastUsed:  lastUsed,
	}
}

func TestStoreRecordAndList(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.Record(entry("old", now.Add(-time.Hour), "/tmp/old")))
	require.NoError(t, s.Record(entry("new", now, "/tmp/new")))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Most recently used first.
	require.Equal(t, "new", entries[0].Key)
	require.Equal(t, "old", entries[1].Key)
	require.Equal(t, int64(1<<20), entries[0].SizeBytes)
}

func TestStoreRecordReplaces(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.Record(entry("k", now, "/tmp/a")))
	e := entry("k", now, "/tmp/b")
	require.NoError(t, s.Record(e))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/tmp/b", entries[0].Path)
}

func TestStoreTouch(t *testing.T) {
	s := openTestStore(t)

	stale := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, s.Record(entry("k", stale, "/tmp/k")))
	require.NoError(t, s.Touch("k"))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].LastUsed.After(stale), "touch did not advance last_used")

	// Unindexed key is a no-op, not an error.
	require.NoError(t, s.Touch("absent"))
}

func TestStoreDelete(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	require.NoError(t, s.Record(entry("k", now, "/tmp/k")))
	require.NoError(t, s.Delete("k"))

	entries, err := s.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)

	root := t.TempDir()
	mkCache := func(key string) string {
		dir := filepath.Join(root, key)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0755))
		return dir
	}

	now := time.Now()
	require.NoError(t, s.Record(entry("fresh", now, mkCache("fresh"))))
	require.NoError(t, s.Record(entry("stale", now.Add(-60*24*time.Hour), mkCache("stale"))))
	require.NoError(t, s.Record(entry("ancient", now.Add(-90*24*time.Hour), mkCache("ancient"))))

	pruned, err := s.Prune(PrunePolicy{MaxAge: 30 * 24 * time.Hour, Keep: 1})
	require.NoError(t, err)
	require.Len(t, pruned, 2)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "fresh", entries[0].Key)

	_, err = os.Stat(filepath.Join(root, "fresh"))
	require.NoError(t, err, "retained cache removed from disk")
	_, err = os.Stat(filepath.Join(root, "stale"))
	require.True(t, os.IsNotExist(err), "pruned cache still on disk")
}

func TestPruneKeepOverridesAge(t *testing.T) {
	s := openTestStore(t)

	root := t.TempDir()
	old := time.Now().Add(-365 * 24 * time.Hour)
	for _, key := range []string{"a", "b", "c"} {
		dir := filepath.Join(root, key)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, s.Record(entry(key, old, dir)))
	}

	pruned, err := s.Prune(PrunePolicy{MaxAge: time.Hour, Keep: 3})
	require.NoError(t, err)
	require.Empty(t, pruned, "keep count must retain caches past max age")
}
