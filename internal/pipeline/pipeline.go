// Package pipeline wires the stages together: resolve the toolchain and
// snapshot the source, build the shared dependency cache exactly once, then
// fan the cache out to every task. Failure propagates forward only: a fatal
// resolution or cache error aborts all dependents, while task failures stay
// local to their task.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilnproject/kiln/internal/cachestore"
	"github.com/kilnproject/kiln/internal/checkset"
	"github.com/kilnproject/kiln/internal/config"
	"github.com/kilnproject/kiln/internal/depcache"
	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/runner"
	"github.com/kilnproject/kiln/internal/snapshot"
	"github.com/kilnproject/kiln/internal/task"
	"github.com/kilnproject/kiln/internal/toolchain"
)

// Pipeline coordinates one project's build-and-verification runs.
type Pipeline struct {
	cfg    models.PipelineConfig
	runner runner.Runner
	store  *cachestore.Store
	exec   checkset.TaskExecutor
}

// Inputs are the immutable shared values every downstream task consumes.
type Inputs struct {
	Manifest  models.Manifest
	Lockfile  models.Lockfile
	Toolchain models.Toolchain
	Snapshot  *models.Snapshot
	Cache     models.DepCache
}

// New creates a Pipeline for the configured workspace.
func New(cfg models.PipelineConfig, r runner.Runner) (*Pipeline, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	store, err := cachestore.Open(filepath.Join(cfg.CacheDir, "index.db"))
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:    cfg,
		runner: r,
		store:  store,
		exec:   task.NewExecutor(r, ""),
	}, nil
}

// Close releases the cache index.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Store exposes the cache index for gc.
func (p *Pipeline) Store() *cachestore.Store {
	return p.store
}

// Prepare computes the shared inputs: manifest, lock file, resolved
// toolchain, source snapshot and the dependency cache. The toolchain
// resolution and the snapshot are independent and run concurrently; the cache
// build joins on both and happens exactly once per key.
func (p *Pipeline) Prepare(ctx context.Context) (*Inputs, error) {
	fsys := os.DirFS(p.cfg.Workspace)

	manifest, err := config.LoadManifest(fsys)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	lock, err := config.LoadLockfile(fsys)
	if err != nil {
		return nil, fmt.Errorf("loading lock file: %w", err)
	}
	spec, err := config.LoadToolchainSpec(fsys, p.cfg.ToolchainFile)
	if err != nil {
		return nil, fmt.Errorf("loading toolchain pin: %w", err)
	}

	in := &Inputs{Manifest: manifest, Lockfile: lock}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tc, err := toolchain.NewResolver(p.runner).Resolve(gctx, spec)
		if err != nil {
			return err
		}
		in.Toolchain = tc
		return nil
	})
	g.Go(func() error {
		snap, err := snapshot.New(p.cfg.Workspace, p.cfg.Ignore).Take()
		if err != nil {
			return err
		}
		in.Snapshot = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	builder := depcache.NewBuilder(p.runner, p.cfg.CacheDir, p.store)
	cache, err := builder.Ensure(ctx, manifest, lock, in.Toolchain)
	if err != nil {
		return nil, err
	}
	in.Cache = cache

	return in, nil
}

// RunChecks executes the named members of the check set (all of them when
// names is empty) and persists a run report. The report always exists, even
// for fatal failures, so every invocation leaves a record.
func (p *Pipeline) RunChecks(ctx context.Context, names []string) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.NewString(),
		Project:   p.cfg.Name,
		StartedAt: time.Now(),
	}
	defer func() {
		report.EndedAt = time.Now()
		report.TotalDurationSec = report.EndedAt.Sub(report.StartedAt).Seconds()
		if err := p.writeReport(report); err != nil {
			slog.Warn("persisting run report", "run_id", report.RunID, "error", err)
		}
	}()

	set, err := checkset.New(p.cfg.Checks.SetName, task.Definitions(p.cfg.Checks)).Select(names)
	if err != nil {
		return report, err
	}

	in, err := p.Prepare(ctx)
	if err != nil {
		report.Fatal = classifyFatal(err)
		return report, err
	}

	report.ToolchainID = in.Toolchain.Identity
	report.SnapshotHash = in.Snapshot.Hash
	report.CacheKey = in.Cache.Key
	report.CacheReused = in.Cache.Reused

	slog.Info("running check set",
		"set", set.Name,
		"checks", len(set.Members),
		"workers", p.cfg.Workers,
		"cache_reused", in.Cache.Reused)

	result := set.Run(ctx, p.exec, in.Snapshot, in.Cache, in.Toolchain, p.cfg.Workers)
	report.CheckSet = result

	if !result.Passed {
		return report, fmt.Errorf("check set %s: %d of %d checks failed", result.Name, result.Failures+result.Skipped, len(set.Members))
	}
	return report, nil
}

// classifyFatal maps a Prepare error onto the report's error taxonomy.
func classifyFatal(err error) *models.TaskError {
	var resErr *toolchain.ResolutionError
	if errors.As(err, &resErr) {
		return &models.TaskError{Type: models.ErrToolchainResolution, Message: err.Error()}
	}
	var depErr *depcache.DependencyResolutionError
	if errors.As(err, &depErr) {
		return &models.TaskError{Type: models.ErrDependencyResolution, Message: err.Error()}
	}
	return &models.TaskError{Type: models.ErrInternalError, Message: err.Error()}
}

func (p *Pipeline) writeReport(report *models.RunReport) error {
	dir := filepath.Join(p.cfg.RunsDir, fmt.Sprintf("%s__%s", report.StartedAt.Format("2006-01-02__15-04-05"), report.RunID[:8]))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "report.json"), data, 0644)
}
