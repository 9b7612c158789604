package task

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/runner"
	"github.com/kilnproject/kiln/internal/workspace"
)

// Executor runs task definitions. All executions share the same snapshot,
// cache and toolchain by reference; each gets a private staged workspace.
type Executor struct {
	runner      runner.Runner
	scratchRoot string
}

// NewExecutor creates an Executor staging workspaces under scratchRoot.
func NewExecutor(r runner.Runner, scratchRoot string) *Executor {
	return &Executor{runner: r, scratchRoot: scratchRoot}
}

// Execute runs one task definition to completion and returns its result.
// Task-level failures are reported inside the result, never as an error; the
// error return is reserved for infrastructure faults like an unstageable
// workspace.
func (e *Executor) Execute(ctx context.Context, def models.TaskDefinition, snap *models.Snapshot, cache models.DepCache, tc models.Toolchain) (*models.TaskResult, error) {
	result := &models.TaskResult{
		Name:      def.Name,
		Kind:      def.Kind,
		Status:    models.StatusFailure,
		StartedAt: time.Now(),
	}
	defer func() {
		result.EndedAt = time.Now()
		result.DurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()
	}()

	// Declared extra inputs must exist before any work is staged.
	for _, tool := range def.Tools {
		if _, err := e.runner.LookPath(tool); err != nil {
			result.Error = &models.TaskError{
				Type:    models.ErrTaskFailure,
				Message: fmt.Sprintf("required tool %s not found: %s", tool, err),
			}
			return result, nil
		}
	}

	ws, err := workspace.Stage(snap, cache, e.scratchRoot, def.Name)
	if err != nil {
		result.Error = &models.TaskError{
			Type:    models.ErrWorkspaceSetup,
			Message: err.Error(),
		}
		return result, nil
	}
	defer ws.Cleanup()

	env := tc.Env()
	env["CARGO_TARGET_DIR"] = ws.TargetDir
	for k, v := range def.Env {
		env[k] = v
	}

	var stdout, stderr bytes.Buffer
	res, err := e.runner.Run(ctx, runner.Spec{
		Command: def.Command,
		Args:    def.Args,
		Dir:     ws.Dir,
		Env:     env,
		Timeout: def.Timeout,
		Stdout:  &stdout,
		Stderr:  &stderr,
	})

	result.ExitCode = res.ExitCode
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case err != nil && res.TimedOut:
		result.Error = &models.TaskError{
			Type:    models.ErrTaskTimeout,
			Message: err.Error(),
		}
	case err != nil:
		result.Error = &models.TaskError{
			Type:    models.ErrInternalError,
			Message: err.Error(),
		}
	case res.ExitCode != 0:
		result.Error = &models.TaskError{
			Type:    def.FailType,
			Message: fmt.Sprintf("%s exited with code %d", def.Command, res.ExitCode),
		}
	default:
		result.Status = models.StatusSuccess
	}

	slog.Debug("task finished",
		"task", def.Name,
		"status", result.Status,
		"duration_sec", fmt.Sprintf("%.2f", time.Since(result.StartedAt).Seconds()))

	return result, nil
}
