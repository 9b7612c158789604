package models

import "time"

// CheckSetResult is the aggregate outcome of one check-set invocation. The
// aggregate status is the AND of member statuses, but every member's own
// result is retained: one failing check never suppresses the others.
type CheckSetResult struct {
	Name     string                `json:"name"`
	Passed   bool                  `json:"passed"`
	Checks   map[string]TaskResult `json:"checks"`
	Failures int                   `json:"failures"`
	Skipped  int                   `json:"skipped"`
}

// RunReport is persisted as report.json for every pipeline invocation.
type RunReport struct {
	RunID            string          `json:"run_id"`
	Project          string          `json:"project,omitempty"` // configured pipeline name
	ToolchainID      string          `json:"toolchain_id"`
	SnapshotHash     string          `json:"snapshot_hash"`
	CacheKey         string          `json:"cache_key"`
	CacheReused      bool            `json:"cache_reused"`
	Fatal            *TaskError      `json:"fatal,omitempty"` // resolution or cache-build failure
	CheckSet         *CheckSetResult `json:"check_set,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	TotalDurationSec float64         `json:"total_duration_sec"`
}
