// Package publish exposes the package build's output as an installable
// package, a launchable app and an interactive dev shell.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/runner"
	"github.com/kilnproject/kiln/internal/task"
	"github.com/kilnproject/kiln/internal/util"
	"github.com/kilnproject/kiln/internal/workspace"
)

// Publisher builds and exposes artifacts under an output directory.
type Publisher struct {
	runner runner.Runner
	outDir string
}

// NewPublisher creates a Publisher writing under outDir.
func NewPublisher(r runner.Runner, outDir string) *Publisher {
	return &Publisher{runner: r, outDir: outDir}
}

// Package runs the release build against a staged workspace and installs the
// resulting binary plus a JSON descriptor under the output directory.
func (p *Publisher) Package(ctx context.Context, manifest models.Manifest, snap *models.Snapshot, cache models.DepCache, tc models.Toolchain, checks models.ChecksConfig) (*models.PackageArtifact, error) {
	def := task.ReleaseBuild(checks)

	ws, err := workspace.Stage(snap, cache, "", def.Name)
	if err != nil {
		return nil, fmt.Errorf("staging package workspace: %w", err)
	}
	defer ws.Cleanup()

	env := tc.Env()
	env["CARGO_TARGET_DIR"] = ws.TargetDir

	var out bytes.Buffer
	res, err := p.runner.Run(ctx, runner.Spec{
		Command: def.Command,
		Args:    def.Args,
		Dir:     ws.Dir,
		Env:     env,
		Timeout: def.Timeout,
		Stdout:  &out,
		Stderr:  &out,
	})
	if err != nil {
		return nil, fmt.Errorf("package build: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("package build exited with code %d: %s", res.ExitCode, out.String())
	}

	binName := manifest.BinaryName()
	built := filepath.Join(ws.TargetDir, "release", binName)
	if _, err := os.Stat(built); err != nil {
		return nil, fmt.Errorf("package build produced no binary at %s: %w", built, err)
	}

	binDir := filepath.Join(p.outDir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output bin dir: %w", err)
	}
	installed := filepath.Join(binDir, binName)
	if err := util.CopyFile(built, installed, 0755); err != nil {
		return nil, fmt.Errorf("installing binary: %w", err)
	}

	artifact := &models.PackageArtifact{
		Name:        manifest.Package.Name,
		Version:     manifest.Package.Version,
		BinPath:     installed,
		ToolchainID: tc.Identity,
		CacheKey:    cache.Key,
		BuiltAt:     time.Now(),
	}

	if err := writeJSON(filepath.Join(p.outDir, "package.json"), artifact); err != nil {
		return nil, err
	}

	slog.Info("package published", "name", artifact.Name, "version", artifact.Version, "bin", installed)
	return artifact, nil
}

// App returns the launchable entry-point descriptor for a package artifact.
func (p *Publisher) App(pkg *models.PackageArtifact) models.AppDescriptor {
	return models.AppDescriptor{
		Name:    pkg.Name,
		Entry:   pkg.BinPath,
		Package: pkg.Name,
	}
}

// RunApp launches the app's entry point with the given arguments, wiring the
// caller's standard streams through.
func (p *Publisher) RunApp(ctx context.Context, app models.AppDescriptor, args []string) (int, error) {
	res, err := p.runner.Run(ctx, runner.Spec{
		Command: app.Entry,
		Args:    args,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
	if err != nil {
		return res.ExitCode, fmt.Errorf("running %s: %w", app.Name, err)
	}
	return res.ExitCode, nil
}

// DevShell assembles the interactive environment descriptor: the resolved
// toolchain's selection variables plus the configured auxiliary tools. Tools
// that cannot be found are reported, not fatal.
func (p *Publisher) DevShell(tc models.Toolchain, cfg models.DevShellConfig) models.DevShellDescriptor {
	shell := cfg.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	env := tc.Env()
	for k, v := range cfg.Env {
		env[k] = v
	}

	desc := models.DevShellDescriptor{
		Shell: shell,
		Env:   env,
		Tools: cfg.Tools,
	}
	for _, tool := range cfg.Tools {
		if _, err := p.runner.LookPath(tool); err != nil {
			desc.MissingTools = append(desc.MissingTools, tool)
		}
	}
	return desc
}

// EnterShell starts the interactive shell described by desc and blocks until
// it exits.
func (p *Publisher) EnterShell(ctx context.Context, desc models.DevShellDescriptor) (int, error) {
	for _, missing := range desc.MissingTools {
		slog.Warn("dev shell tool not available", "tool", missing)
	}

	res, err := p.runner.Run(ctx, runner.Spec{
		Command: desc.Shell,
		Env:     desc.Env,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
	if err != nil {
		return res.ExitCode, fmt.Errorf("starting shell: %w", err)
	}
	return res.ExitCode, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
