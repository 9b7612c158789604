// Package testutil provides shared test doubles for packages that shell out
// to the toolchain.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kilnproject/kiln/internal/runner"
)

// Call records one invocation seen by a FakeRunner.
type Call struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
}

// String renders the call the way it would look on a shell command line,
// which keeps assertions readable.
func (c Call) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}

// Response scripts the outcome of a matching invocation.
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error

	// Effect, when set, runs with the matched spec before the response is
	// returned. Tests use it to imitate artifacts a real tool would write.
	Effect func(spec runner.Spec) error
}

// FakeRunner is a scriptable runner.Runner. Responses are matched by command
// line prefix; unmatched invocations succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]Response
	missing   map[string]bool // names LookPath should report as absent
}

// NewFakeRunner creates an empty fake runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		responses: make(map[string]Response),
		missing:   make(map[string]bool),
	}
}

// Respond scripts the response for any invocation whose rendered command line
// starts with prefix.
func (f *FakeRunner) Respond(prefix string, resp Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = resp
}

// MarkMissing makes LookPath fail for the given binary name.
func (f *FakeRunner) MarkMissing(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
}

// Calls returns a copy of every invocation seen so far.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallLines returns the rendered command line of every invocation.
func (f *FakeRunner) CallLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

// Run implements runner.Runner.
func (f *FakeRunner) Run(ctx context.Context, spec runner.Spec) (runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return runner.Result{}, err
	}

	call := Call{Command: spec.Command, Args: spec.Args, Dir: spec.Dir, Env: spec.Env}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var matched *Response
	line := call.String()
	// Longest prefix wins so overlapping scripts behave deterministically.
	best := -1
	for prefix, resp := range f.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > best {
			r := resp
			matched = &r
			best = len(prefix)
		}
	}
	f.mu.Unlock()

	if matched == nil {
		return runner.Result{}, nil
	}

	if matched.Effect != nil {
		if err := matched.Effect(spec); err != nil {
			return runner.Result{}, err
		}
	}

	if spec.Stdout != nil && matched.Stdout != "" {
		fmt.Fprint(spec.Stdout, matched.Stdout)
	}
	if spec.Stderr != nil && matched.Stderr != "" {
		fmt.Fprint(spec.Stderr, matched.Stderr)
	}

	return runner.Result{ExitCode: matched.ExitCode}, matched.Err
}

// LookPath implements runner.Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[name] {
		return "", fmt.Errorf("%s: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}
