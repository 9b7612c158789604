// Package snapshot produces a filtered, content-addressed view of the source
// tree. The snapshot is the sole input every task reads project code from,
// and its hash is what makes cache reuse across runs sound: an unchanged tree
// re-snapshots to the identical hash.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/kilnproject/kiln/internal/models"
)

// alwaysExcluded are filtered regardless of ignore rules: VCS metadata, cargo
// build output, and kiln's own state directory.
var alwaysExcluded = []string{".git", "target", ".kiln"}

// Snapshotter takes snapshots of a workspace root.
type Snapshotter struct {
	root    string
	extra   []gitignore.Pattern // patterns from pipeline config
	hashers int
}

// New creates a Snapshotter for the given root. Extra ignore globs from the
// pipeline config are applied on top of the workspace's .gitignore files.
func New(root string, extraIgnore []string) *Snapshotter {
	var extra []gitignore.Pattern
	for _, g := range extraIgnore {
		extra = append(extra, gitignore.ParsePattern(g, nil))
	}
	return &Snapshotter{root: root, extra: extra, hashers: 8}
}

// Take walks the tree and returns an ordered, content-addressed snapshot.
func (s *Snapshotter) Take() (*models.Snapshot, error) {
	matcher, err := s.buildMatcher()
	if err != nil {
		return nil, fmt.Errorf("reading ignore rules: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		parts := strings.Split(filepath.ToSlash(rel), "/")
		if d.IsDir() {
			if excludedDir(parts[len(parts)-1]) || matcher.Match(parts, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Match(parts, false) {
			return nil
		}

		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}

	sort.Strings(paths)

	entries := make([]models.FileEntry, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(s.hashers)
	for i, rel := range paths {
		g.Go(func() error {
			e, err := s.hashFile(rel)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &models.Snapshot{Root: s.root, Entries: entries}
	snap.Hash = treeHash(entries)

	slog.Debug("snapshot taken", "root", s.root, "files", len(entries), "hash", snap.ShortHash())
	return snap, nil
}

func (s *Snapshotter) hashFile(rel string) (models.FileEntry, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))

	f, err := os.Open(abs)
	if err != nil {
		return models.FileEntry{}, fmt.Errorf("opening %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.FileEntry{}, fmt.Errorf("stat %s: %w", rel, err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return models.FileEntry{}, fmt.Errorf("hashing %s: %w", rel, err)
	}

	return models.FileEntry{
		Path: rel,
		Hash: hex.EncodeToString(h.Sum(nil)),
		Size: info.Size(),
		Mode: uint32(info.Mode().Perm()),
	}, nil
}

// buildMatcher collects .gitignore patterns from the workspace plus the
// configured extras.
func (s *Snapshotter) buildMatcher() (gitignore.Matcher, error) {
	patterns := make([]gitignore.Pattern, 0, len(s.extra))

	data, err := os.ReadFile(filepath.Join(s.root, ".gitignore"))
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	patterns = append(patterns, s.extra...)
	return gitignore.NewMatcher(patterns), nil
}

func excludedDir(name string) bool {
	for _, e := range alwaysExcluded {
		if name == e {
			return true
		}
	}
	return false
}

// treeHash folds the ordered (path, hash) pairs into the snapshot hash.
func treeHash(entries []models.FileEntry) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\n", e.Path, e.Hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Materialize copies the snapshot's files into dst, preserving relative
// layout and permissions. Tasks build against materialized trees, never the
// live workspace.
func Materialize(snap *models.Snapshot, dst string) error {
	for _, e := range snap.Entries {
		src := filepath.Join(snap.Root, filepath.FromSlash(e.Path))
		out := filepath.Join(dst, filepath.FromSlash(e.Path))

		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(out), err)
		}
		if err := copyFile(src, out, os.FileMode(e.Mode)); err != nil {
			return fmt.Errorf("copying %s: %w", e.Path, err)
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
