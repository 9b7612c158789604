package models

// ErrorType identifies the category of failure that occurred.
type ErrorType string

const (
	// Toolchain resolution phase. Fatal: nothing downstream can run.
	ErrToolchainResolution ErrorType = "resolution_error"

	// Dependency cache build phase. Fatal: every task needs the cache.
	ErrDependencyResolution ErrorType = "dependency_resolution_error"

	// Task execution phase. Local to the failing task.
	ErrTaskFailure    ErrorType = "task_failure"
	ErrTaskTimeout    ErrorType = "task_timeout"
	ErrFormatMismatch ErrorType = "format_mismatch"
	ErrWorkspaceSetup ErrorType = "workspace_setup_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// Fatal reports whether an error of this type aborts the whole pipeline
// rather than just the task that produced it.
func (t ErrorType) Fatal() bool {
	return t == ErrToolchainResolution || t == ErrDependencyResolution
}
