package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/testutil"
)

const rustcVersion = "rustc 1.84.0 (9fc6b4312 2025-01-07)\nrelease: 1.84.0\n"

func fixtureWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"Cargo.toml":          "[package]\nname = \"git-dit\"\nversion = \"0.4.0\"\n",
		"Cargo.lock":          "version = 3\n\n[[package]]\nname = \"git-dit\"\nversion = \"0.4.0\"\n",
		"rust-toolchain.toml": "[toolchain]\nchannel = \"1.84.0\"\ncomponents = [\"clippy\", \"rustfmt\"]\n",
		"src/main.rs":         "fn main() {}\n",
	}
	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func fixtureConfig(t *testing.T, workspace string) models.PipelineConfig {
	t.Helper()
	return models.PipelineConfig{
		Name:          "git-dit-ci",
		Workspace:     workspace,
		CacheDir:      filepath.Join(t.TempDir(), "cache"),
		RunsDir:       filepath.Join(t.TempDir(), "runs"),
		OutDir:        filepath.Join(t.TempDir(), "out"),
		ToolchainFile: "rust-toolchain.toml",
		Workers:       2,
		Checks: models.ChecksConfig{
			SetName:         "ci",
			TestRunner:      "cargo",
			DocDenyWarnings: true,
			TimeoutSec:      600,
		},
	}
}

func newFakeRunner() *testutil.FakeRunner {
	fake := testutil.NewFakeRunner()
	fake.Respond("rustc --version", testutil.Response{Stdout: rustcVersion})
	return fake
}

func openPipeline(t *testing.T, cfg models.PipelineConfig, fake *testutil.FakeRunner) *Pipeline {
	t.Helper()
	p, err := New(cfg, fake)
	if err != nil {
		t.Fatalf("creating pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestRunChecksFullSet(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	fake := newFakeRunner()
	p := openPipeline(t, cfg, fake)

	report, err := p.RunChecks(context.Background(), nil)
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}

	if !report.CheckSet.Passed {
		t.Error("all-passing run reported failure")
	}
	if len(report.CheckSet.Checks) != 7 {
		t.Errorf("report has %d checks, want 7", len(report.CheckSet.Checks))
	}
	if report.ToolchainID == "" || report.SnapshotHash == "" || report.CacheKey == "" {
		t.Error("report missing provenance fields")
	}
	if report.Project != "git-dit-ci" {
		t.Errorf("report project = %q, want the configured name", report.Project)
	}
	if report.CacheReused {
		t.Error("first run reported a reused cache")
	}
	if report.Fatal != nil {
		t.Errorf("unexpected fatal error: %+v", report.Fatal)
	}
}

func TestRunChecksWritesReport(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	p := openPipeline(t, cfg, newFakeRunner())

	report, err := p.RunChecks(context.Background(), []string{"fmt"})
	if err != nil {
		t.Fatalf("run checks: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(cfg.RunsDir, "*", "report.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected exactly one persisted report, got %v (err %v)", matches, err)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	var persisted models.RunReport
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("decoding persisted report: %v", err)
	}
	if persisted.RunID != report.RunID {
		t.Error("persisted report does not match the returned one")
	}
	if !strings.Contains(filepath.Base(filepath.Dir(matches[0])), report.RunID[:8]) {
		t.Error("report directory not named after the run")
	}
}

func TestCacheReusedAcrossRuns(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	fake := newFakeRunner()
	p := openPipeline(t, cfg, fake)

	// Restricting to fmt keeps cargo build attributable to the dependency
	// cache alone.
	first, err := p.RunChecks(context.Background(), []string{"fmt"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.CacheReused {
		t.Error("first run reported a reused cache")
	}

	// An edit to project source must not invalidate the dependency cache.
	if err := os.WriteFile(filepath.Join(ws, "src", "main.rs"), []byte("fn main() { todo!() }\n"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := p.RunChecks(context.Background(), []string{"fmt"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.CacheReused {
		t.Error("second run did not reuse the cache")
	}
	if second.CacheKey != first.CacheKey {
		t.Error("source edit changed the cache key")
	}
	if second.SnapshotHash == first.SnapshotHash {
		t.Error("source edit did not change the snapshot hash")
	}

	if n := countPrefix(fake.CallLines(), "cargo build"); n != 1 {
		t.Errorf("dependency cache built %d times across two runs, want 1", n)
	}
}

func TestManifestEditInvalidatesCache(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	fake := newFakeRunner()
	p := openPipeline(t, cfg, fake)

	first, err := p.RunChecks(context.Background(), []string{"fmt"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	if err := os.WriteFile(filepath.Join(ws, "Cargo.toml"), []byte("[package]\nname = \"git-dit\"\nversion = \"0.5.0\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	second, err := p.RunChecks(context.Background(), []string{"fmt"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.CacheKey == first.CacheKey {
		t.Error("manifest edit did not change the cache key")
	}
	if second.CacheReused {
		t.Error("second run reused a cache for a different manifest")
	}
	if n := countPrefix(fake.CallLines(), "cargo build"); n != 2 {
		t.Errorf("dependency cache built %d times, want 2", n)
	}
}

func TestFatalToolchainError(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	fake := newFakeRunner()
	fake.Respond("rustup toolchain install", testutil.Response{
		ExitCode: 1,
		Stderr:   "error: no release found\n",
	})
	p := openPipeline(t, cfg, fake)

	report, err := p.RunChecks(context.Background(), nil)
	if err == nil {
		t.Fatal("unsatisfiable toolchain pin did not error")
	}
	if report.Fatal == nil || report.Fatal.Type != models.ErrToolchainResolution {
		t.Fatalf("fatal = %+v, want %s", report.Fatal, models.ErrToolchainResolution)
	}

	// No task may run after a fatal resolution error.
	if n := countPrefix(fake.CallLines(), "cargo"); n != 0 {
		t.Errorf("%d cargo invocations after fatal error, want 0", n)
	}

	// The run still leaves a report behind.
	matches, _ := filepath.Glob(filepath.Join(cfg.RunsDir, "*", "report.json"))
	if len(matches) != 1 {
		t.Errorf("expected a persisted report for the fatal run, got %v", matches)
	}
}

func TestFatalDependencyError(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	fake := newFakeRunner()
	fake.Respond("cargo build --all-features --locked", testutil.Response{
		ExitCode: 101,
		Stderr:   "error: failed to select a version\n",
	})
	p := openPipeline(t, cfg, fake)

	report, err := p.RunChecks(context.Background(), nil)
	if err == nil {
		t.Fatal("failed dependency build did not error")
	}
	if report.Fatal == nil || report.Fatal.Type != models.ErrDependencyResolution {
		t.Fatalf("fatal = %+v, want %s", report.Fatal, models.ErrDependencyResolution)
	}
}

func TestCheckFailureIsNotFatal(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	fake := newFakeRunner()
	fake.Respond("cargo fmt", testutil.Response{
		ExitCode: 1,
		Stderr:   "Diff in src/main.rs\n",
	})
	p := openPipeline(t, cfg, fake)

	report, err := p.RunChecks(context.Background(), nil)
	if err == nil {
		t.Fatal("failing check did not error the run")
	}

	if report.Fatal != nil {
		t.Errorf("task failure classified as fatal: %+v", report.Fatal)
	}
	if report.CheckSet.Passed {
		t.Error("set with failing member reported success")
	}
	if report.CheckSet.Failures != 1 {
		t.Errorf("failures = %d, want 1", report.CheckSet.Failures)
	}

	fmtResult := report.CheckSet.Checks["fmt"]
	if fmtResult.Error == nil || fmtResult.Error.Type != models.ErrFormatMismatch {
		t.Errorf("fmt error = %+v, want %s", fmtResult.Error, models.ErrFormatMismatch)
	}

	// Siblings of the failing check still ran.
	for _, name := range []string{"build", "test", "clippy"} {
		if report.CheckSet.Checks[name].Status != models.StatusSuccess {
			t.Errorf("check %s status = %s, want success", name, report.CheckSet.Checks[name].Status)
		}
	}
}

func TestSelectUnknownCheck(t *testing.T) {
	ws := fixtureWorkspace(t)
	cfg := fixtureConfig(t, ws)
	p := openPipeline(t, cfg, newFakeRunner())

	if _, err := p.RunChecks(context.Background(), []string{"bench"}); err == nil {
		t.Error("unknown check name did not error")
	}
}
