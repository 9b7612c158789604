package models

// PipelineConfig represents the parsed kiln.yaml configuration.
type PipelineConfig struct {
	Name          string         `yaml:"name,omitempty" json:"name,omitempty"`
	Workspace     string         `yaml:"workspace" json:"workspace"`
	CacheDir      string         `yaml:"cache_dir" json:"cache_dir"`
	RunsDir       string         `yaml:"runs_dir" json:"runs_dir"`
	OutDir        string         `yaml:"out_dir" json:"out_dir"`
	ToolchainFile string         `yaml:"toolchain_file" json:"toolchain_file"`
	Workers       int            `yaml:"workers" json:"workers"`
	LogLevel      string         `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Ignore        []string       `yaml:"ignore,omitempty" json:"ignore,omitempty"`
	Checks        ChecksConfig   `yaml:"checks" json:"checks"`
	DevShell      DevShellConfig `yaml:"devshell" json:"devshell"`
	GC            GCConfig       `yaml:"gc" json:"gc"`
}

// ChecksConfig tunes the individual members of the check set. Membership
// itself is static; these knobs only adjust variant-specific arguments.
type ChecksConfig struct {
	SetName string `yaml:"set_name" json:"set_name"`

	// TestRunner selects the unit-test runner: "cargo" or "nextest".
	TestRunner string `yaml:"test_runner" json:"test_runner"`

	// DocDenyWarnings treats every rustdoc warning as fatal.
	DocDenyWarnings bool `yaml:"doc_deny_warnings" json:"doc_deny_warnings"`

	// TimeoutSec bounds each task individually; 0 disables the bound.
	TimeoutSec float64 `yaml:"timeout_sec" json:"timeout_sec"`
}

// DevShellConfig describes the interactive environment. Provisioning it has
// no build step: the descriptor is handed to the shell as-is.
type DevShellConfig struct {
	Shell string            `yaml:"shell,omitempty" json:"shell,omitempty"`
	Tools []string          `yaml:"tools" json:"tools"`
	Env   map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// GCConfig controls pruning of stale dependency caches.
type GCConfig struct {
	MaxAge string `yaml:"max_age" json:"max_age"` // Go duration, e.g. "720h"
	Keep   int    `yaml:"keep" json:"keep"`       // most recent entries always kept
}
