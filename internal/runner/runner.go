// Package runner abstracts process execution so every toolchain invocation in
// the pipeline goes through a single seam. Production uses the local runner;
// tests substitute a fake that records invocations.
package runner

import (
	"context"
	"io"
	"time"
)

// Spec describes one command invocation.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string // appended to the inherited environment
	Path    []string          // directories prepended to PATH
	Timeout time.Duration     // zero means no timeout
	Stdin   io.Reader         // optional; only interactive surfaces set it
	Stdout  io.Writer         // optional sinks; nil discards
	Stderr  io.Writer
}

// Result is the terminal state of one invocation.
type Result struct {
	ExitCode    int
	TimedOut    bool
	DurationSec float64
}

// Runner executes commands. Run returns an error only when the command could
// not be started or was killed; a non-zero exit is reported through Result,
// leaving classification to the caller.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)

	// LookPath resolves a binary name against the runner's PATH, reporting
	// whether the tool is available at all.
	LookPath(name string) (string, error)
}
