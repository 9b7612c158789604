// Package depcache builds and reuses the compiled-dependency cache. The
// cache holds only the external dependency graph: a stub crate carrying the
// real manifest and lock file is compiled once, and the resulting target
// directory is shared read-only by every task. Because the key covers only
// the manifest, the lock file and the toolchain identity, edits to the
// project's own source never invalidate it.
package depcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilnproject/kiln/internal/cachestore"
	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/runner"
)

// DependencyResolutionError means a declared dependency could not be located
// or compiled. Fatal: every task requires the cache.
type DependencyResolutionError struct {
	Key    string
	Reason string
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("building dependency cache %.12s: %s", e.Key, e.Reason)
}

// Builder compiles dependency caches under a cache root.
type Builder struct {
	runner       runner.Runner
	cacheRoot    string
	store        *cachestore.Store
	buildTimeout time.Duration
}

// NewBuilder creates a Builder. The store may be nil, in which case reuse
// still works (presence on disk decides) but gc has nothing to index.
func NewBuilder(r runner.Runner, cacheRoot string, store *cachestore.Store) *Builder {
	return &Builder{
		runner:       r,
		cacheRoot:    cacheRoot,
		store:        store,
		buildTimeout: 30 * time.Minute,
	}
}

// Key derives the cache key. Only the exact manifest and lock bytes and the
// toolchain identity participate; the rest of the source tree is explicitly
// excluded.
func Key(manifest models.Manifest, lock models.Lockfile, tc models.Toolchain) string {
	h := sha256.New()
	h.Write(manifest.Raw)
	h.Write([]byte{0})
	h.Write(lock.Raw)
	h.Write([]byte{0})
	h.Write([]byte(tc.Identity))
	return hex.EncodeToString(h.Sum(nil))
}

// Ensure returns the cache for (manifest, lock, toolchain), building it
// exactly once. A cache already on disk under the same key is reused
// verbatim.
func (b *Builder) Ensure(ctx context.Context, manifest models.Manifest, lock models.Lockfile, tc models.Toolchain) (models.DepCache, error) {
	key := Key(manifest, lock, tc)
	targetDir := filepath.Join(b.cacheRoot, "deps", key, "target")

	cache := models.DepCache{
		Key:       key,
		Toolchain: tc.Identity,
		TargetDir: targetDir,
	}

	if info, err := os.Stat(targetDir); err == nil && info.IsDir() {
		cache.Reused = true
		slog.Info("dependency cache reused", "key", cache.ShortKey())
		if b.store != nil {
			if err := b.store.Touch(key); err != nil {
				slog.Warn("touching cache index entry", "key", cache.ShortKey(), "error", err)
			}
		}
		return cache, nil
	}

	slog.Info("building dependency cache",
		"key", cache.ShortKey(),
		"toolchain", tc.ShortIdentity(),
		"packages", len(lock.Packages))

	if err := b.build(ctx, manifest, lock, tc, targetDir); err != nil {
		// A partial target dir must not be mistaken for a cache on the next run.
		os.RemoveAll(filepath.Join(b.cacheRoot, "deps", key))
		return cache, err
	}

	cache.CreatedAt = time.Now()
	if b.store != nil {
		size := dirSize(targetDir)
		if err := b.store.Record(cachestore.Entry{
			Key:       key,
			Toolchain: tc.Identity,
			Path:      filepath.Join(b.cacheRoot, "deps", key),
			SizeBytes: size,
			CreatedAt: cache.CreatedAt,
			LastUsed:  cache.CreatedAt,
		}); err != nil {
			slog.Warn("recording cache index entry", "key", cache.ShortKey(), "error", err)
		}
	}

	return cache, nil
}

// build stages a stub crate with the real manifest and lock file and compiles
// it with all features, leaving only dependency artifacts worth keeping.
func (b *Builder) build(ctx context.Context, manifest models.Manifest, lock models.Lockfile, tc models.Toolchain, targetDir string) error {
	key := Key(manifest, lock, tc)

	stubDir, err := os.MkdirTemp("", "kiln-depcache-*")
	if err != nil {
		return &DependencyResolutionError{Key: key, Reason: fmt.Sprintf("creating stub dir: %s", err)}
	}
	defer os.RemoveAll(stubDir)

	if err := stageStub(stubDir, manifest, lock); err != nil {
		return &DependencyResolutionError{Key: key, Reason: err.Error()}
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return &DependencyResolutionError{Key: key, Reason: fmt.Sprintf("creating target dir: %s", err)}
	}

	env := tc.Env()
	env["CARGO_TARGET_DIR"] = targetDir

	var out bytes.Buffer
	res, err := b.runner.Run(ctx, runner.Spec{
		Command: "cargo",
		Args:    []string{"build", "--all-features", "--locked"},
		Dir:     stubDir,
		Env:     env,
		Timeout: b.buildTimeout,
		Stdout:  &out,
		Stderr:  &out,
	})
	if err != nil {
		return &DependencyResolutionError{Key: key, Reason: err.Error()}
	}
	if res.ExitCode != 0 {
		return &DependencyResolutionError{
			Key:    key,
			Reason: fmt.Sprintf("cargo build exited with code %d: %s", res.ExitCode, tail(out.String(), 2000)),
		}
	}

	return nil
}

// stageStub writes the exact manifest and lock bytes next to empty source
// stubs, so cargo resolves and compiles dependencies without seeing any real
// project code.
func stageStub(dir string, manifest models.Manifest, lock models.Lockfile) error {
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), manifest.Raw, 0644); err != nil {
		return fmt.Errorf("writing stub manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.lock"), lock.Raw, 0644); err != nil {
		return fmt.Errorf("writing stub lock file: %w", err)
	}

	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		return fmt.Errorf("creating stub src: %w", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "lib.rs"), nil, 0644); err != nil {
		return fmt.Errorf("writing stub lib.rs: %w", err)
	}

	// Declared binary targets need stub entry points at their declared paths.
	main := []byte("fn main() {}\n")
	if err := os.WriteFile(filepath.Join(srcDir, "main.rs"), main, 0644); err != nil {
		return fmt.Errorf("writing stub main.rs: %w", err)
	}
	for _, bin := range manifest.Bin {
		if bin.Path == "" {
			continue
		}
		p := filepath.Join(dir, filepath.FromSlash(bin.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("creating stub bin dir: %w", err)
		}
		if err := os.WriteFile(p, main, 0644); err != nil {
			return fmt.Errorf("writing stub %s: %w", bin.Path, err)
		}
	}

	return nil
}

func dirSize(root string) int64 {
	var total int64
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// tail returns at most n trailing bytes of s, for bounded diagnostics.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
