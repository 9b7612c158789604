// Package task defines the pipeline's verification and build tasks and
// executes them against a staged workspace.
package task

import (
	"time"

	"github.com/kilnproject/kiln/internal/models"
)

// Definitions returns the static members of the check set. Membership never
// varies at runtime; the config only adjusts variant-specific arguments.
//
// Clippy runs twice on purpose: feature flags change which code paths are
// compiled, so the maximal and minimal feature configurations together cover
// lint violations gated in either direction. Coverage stays at those two
// points; intermediate feature combinations are a deliberate non-goal.
func Definitions(checks models.ChecksConfig) []models.TaskDefinition {
	timeout := time.Duration(checks.TimeoutSec * float64(time.Second))

	docEnv := map[string]string{}
	if checks.DocDenyWarnings {
		// Environment-level strict mode: rustdoc warnings become fatal.
		docEnv["RUSTDOCFLAGS"] = "-D warnings"
	}

	test := models.TaskDefinition{
		Name:     "test",
		Kind:     models.TaskUnitTest,
		Command:  "cargo",
		Args:     []string{"test", "--all-features", "--locked"},
		Timeout:  timeout,
		FailType: models.ErrTaskFailure,
	}
	if checks.TestRunner == "nextest" {
		test.Args = []string{"nextest", "run", "--all-features", "--locked"}
		test.Tools = []string{"cargo-nextest"}
	}

	return []models.TaskDefinition{
		{
			Name:     "build",
			Kind:     models.TaskBuild,
			Command:  "cargo",
			Args:     []string{"build", "--all-features", "--locked"},
			Timeout:  timeout,
			FailType: models.ErrTaskFailure,
		},
		{
			Name:     "doc",
			Kind:     models.TaskDoc,
			Command:  "cargo",
			Args:     []string{"doc", "--no-deps", "--all-features", "--locked"},
			Env:      docEnv,
			Timeout:  timeout,
			FailType: models.ErrTaskFailure,
		},
		{
			Name:     "doc-test",
			Kind:     models.TaskDocTest,
			Command:  "cargo",
			Args:     []string{"test", "--doc", "--all-features", "--locked"},
			Timeout:  timeout,
			FailType: models.ErrTaskFailure,
		},
		test,
		{
			Name:     "clippy",
			Kind:     models.TaskLintAll,
			Command:  "cargo",
			Args:     []string{"clippy", "--all-targets", "--all-features", "--locked", "--", "-D", "warnings"},
			Timeout:  timeout,
			FailType: models.ErrTaskFailure,
		},
		{
			Name:     "clippy-no-default",
			Kind:     models.TaskLintNoDefault,
			Command:  "cargo",
			Args:     []string{"clippy", "--all-targets", "--no-default-features", "--locked", "--", "-D", "warnings"},
			Timeout:  timeout,
			FailType: models.ErrTaskFailure,
		},
		{
			Name:     "fmt",
			Kind:     models.TaskFmt,
			Command:  "cargo",
			Args:     []string{"fmt", "--", "--check"},
			Timeout:  timeout,
			FailType: models.ErrFormatMismatch,
		},
	}
}

// ReleaseBuild is the package build the publisher consumes. It is the same
// task shape as the check-set build, in release mode.
func ReleaseBuild(checks models.ChecksConfig) models.TaskDefinition {
	return models.TaskDefinition{
		Name:     "package-build",
		Kind:     models.TaskBuild,
		Command:  "cargo",
		Args:     []string{"build", "--release", "--all-features", "--locked"},
		Timeout:  time.Duration(checks.TimeoutSec * float64(time.Second)),
		FailType: models.ErrTaskFailure,
	}
}
