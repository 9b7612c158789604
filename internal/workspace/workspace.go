// Package workspace materializes per-task build directories. Every task gets
// its own scratch tree holding the snapshot's files plus a clone of the
// shared dependency cache, so the snapshot and the cache themselves are never
// written to.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/snapshot"
	"github.com/kilnproject/kiln/internal/util"
)

// Workspace is a staged scratch directory for one task execution.
type Workspace struct {
	Dir       string // staged source tree
	TargetDir string // task-private clone of the dependency cache
}

// Stage creates a scratch workspace for the given snapshot and cache. The
// caller owns the returned directory and removes it with Cleanup.
func Stage(snap *models.Snapshot, cache models.DepCache, scratchRoot, taskName string) (*Workspace, error) {
	dir, err := os.MkdirTemp(scratchRoot, fmt.Sprintf("task-%s-*", taskName))
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}

	if err := snapshot.Materialize(snap, dir); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("materializing snapshot: %w", err)
	}

	targetDir := filepath.Join(dir, "target")
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating target dir: %w", err)
	}
	if err := util.CloneTree(cache.TargetDir, targetDir); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning dependency cache: %w", err)
	}

	return &Workspace{Dir: dir, TargetDir: targetDir}, nil
}

// Cleanup removes the scratch directory.
func (w *Workspace) Cleanup() {
	if w != nil && w.Dir != "" {
		os.RemoveAll(w.Dir)
	}
}
