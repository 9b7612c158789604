package models

import "time"

// TaskKind names one of the verification/build task variants.
type TaskKind string

const (
	TaskBuild         TaskKind = "build"
	TaskDoc           TaskKind = "doc"
	TaskDocTest       TaskKind = "doc-test"
	TaskUnitTest      TaskKind = "test"
	TaskLintAll       TaskKind = "lint-all-features"
	TaskLintNoDefault TaskKind = "lint-no-default-features"
	TaskFmt           TaskKind = "fmt"
)

// TaskDefinition is an independently executable, independently failable unit.
// Every definition consumes the same snapshot and dependency cache by
// reference; definitions never mutate either, and never see each other's
// scratch state.
type TaskDefinition struct {
	Name     string            // check name, unique within a set
	Kind     TaskKind
	Command  string            // binary to invoke, usually "cargo"
	Args     []string
	Env      map[string]string // task-specific additions, e.g. RUSTDOCFLAGS
	Tools    []string          // auxiliary binaries the task needs on PATH
	Timeout  time.Duration     // zero means no task-level timeout
	FailType ErrorType         // classification used when the task fails
}

// TaskStatus is the terminal state of one task execution.
type TaskStatus string

const (
	StatusSuccess TaskStatus = "success"
	StatusFailure TaskStatus = "failure"
	StatusSkipped TaskStatus = "skipped" // fatal upstream error, task never ran
)

// TaskResult is the outcome of executing a single TaskDefinition.
type TaskResult struct {
	Name        string     `json:"name"`
	Kind        TaskKind   `json:"kind"`
	Status      TaskStatus `json:"status"`
	Error       *TaskError `json:"error,omitempty"`
	ExitCode    int        `json:"exit_code"`
	Stdout      string     `json:"stdout,omitempty"`
	Stderr      string     `json:"stderr,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     time.Time  `json:"ended_at"`
	DurationSec float64    `json:"duration_sec"`
}

// TaskError carries the classified failure of a task.
type TaskError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Failed reports whether the task ended in failure.
func (r *TaskResult) Failed() bool {
	return r.Status == StatusFailure
}
