// Package watch re-runs the check set whenever the source tree changes.
// Cache reuse makes this cheap: edits that leave the manifest and lock file
// alone re-use the dependency cache and only recompile project code.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are never watched: VCS metadata, build output, kiln state.
var skipDirs = map[string]bool{".git": true, "target": true, ".kiln": true}

// Watcher monitors a workspace and triggers a callback on debounced changes.
type Watcher struct {
	root         string
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	onChange     func(ctx context.Context)
}

// New creates a Watcher over the workspace root. onChange runs after each
// debounced burst of file events.
func New(root string, onChange func(ctx context.Context)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}

	return &Watcher{
		root:         absRoot,
		watcher:      fw,
		debounceTime: 2 * time.Second, // collapse editor save bursts
		onChange:     onChange,
	}, nil
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	slog.Info("watching workspace", "root", w.root)

	var timer *time.Timer

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if skipDirs[filepath.Base(event.Name)] {
				continue
			}

			// New directories must be picked up to keep the watch recursive.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						slog.Warn("watching new directory", "path", event.Name, "error", err)
					}
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("change detected", "path", event.Name, "op", event.Op.String())
				if timer == nil {
					timer = time.NewTimer(w.debounceTime)
				} else {
					timer.Reset(w.debounceTime)
				}
			}

		case <-timerC:
			timer = nil
			w.onChange(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] && path != root {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
