package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Local runs commands directly on the host.
type Local struct{}

// NewLocal creates a new local runner.
func NewLocal() *Local {
	return &Local{}
}

// Run executes the command described by spec.
func (l *Local) Run(ctx context.Context, spec Spec) (Result, error) {
	start := time.Now()

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = mergedEnv(spec)
	cmd.Stdin = spec.Stdin

	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else {
		cmd.Stdout = io.Discard
	}
	if spec.Stderr != nil {
		cmd.Stderr = spec.Stderr
	} else {
		cmd.Stderr = io.Discard
	}

	slog.Debug("running command",
		"command", spec.Command,
		"args", strings.Join(spec.Args, " "),
		"dir", spec.Dir)

	err := cmd.Run()
	res := Result{DurationSec: time.Since(start).Seconds()}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if ctx.Err() == context.DeadlineExceeded {
				res.TimedOut = true
				return res, fmt.Errorf("%s timed out after %s", spec.Command, spec.Timeout)
			}
			return res, nil
		}
		return res, fmt.Errorf("running %s: %w", spec.Command, err)
	}

	return res, nil
}

// LookPath resolves a binary against the host PATH.
func (l *Local) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// mergedEnv builds the child environment: inherited, then PATH prepends, then
// the spec's own entries, which win.
func mergedEnv(spec Spec) []string {
	env := os.Environ()

	if len(spec.Path) > 0 {
		path := strings.Join(spec.Path, string(os.PathListSeparator))
		if cur := os.Getenv("PATH"); cur != "" {
			path += string(os.PathListSeparator) + cur
		}
		env = append(env, "PATH="+path)
	}

	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	return env
}
