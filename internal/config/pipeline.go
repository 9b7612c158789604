package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilnproject/kiln/internal/models"
)

// DefaultPipelineConfig returns a PipelineConfig with default values.
func DefaultPipelineConfig() models.PipelineConfig {
	return models.PipelineConfig{
		Workspace:     ".",
		CacheDir:      ".kiln/cache",
		RunsDir:       ".kiln/runs",
		OutDir:        ".kiln/out",
		ToolchainFile: "rust-toolchain.toml",
		Workers:       4,
		Checks: models.ChecksConfig{
			SetName:         "ci",
			TestRunner:      "cargo",
			DocDenyWarnings: true,
			TimeoutSec:      1800.0,
		},
		DevShell: models.DevShellConfig{
			Tools: []string{"committed", "taplo"},
		},
		GC: models.GCConfig{
			MaxAge: "720h",
			Keep:   3,
		},
	}
}

// LoadPipelineConfig loads and parses a kiln.yaml file. A missing file is not
// an error: the defaults describe a plain cargo package in the current
// directory.
func LoadPipelineConfig(path string) (models.PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading pipeline config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing pipeline config: %w", err)
	}

	// Apply defaults for values an explicit file may have zeroed
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".kiln/cache"
	}
	if cfg.RunsDir == "" {
		cfg.RunsDir = ".kiln/runs"
	}
	if cfg.OutDir == "" {
		cfg.OutDir = ".kiln/out"
	}
	if cfg.ToolchainFile == "" {
		cfg.ToolchainFile = "rust-toolchain.toml"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Checks.SetName == "" {
		cfg.Checks.SetName = "ci"
	}
	if cfg.Checks.TestRunner == "" {
		cfg.Checks.TestRunner = "cargo"
	}
	if cfg.GC.Keep <= 0 {
		cfg.GC.Keep = 3
	}
	if cfg.GC.MaxAge == "" {
		cfg.GC.MaxAge = "720h"
	}

	if err := validatePipelineConfig(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validatePipelineConfig(cfg models.PipelineConfig) error {
	switch cfg.Checks.TestRunner {
	case "cargo", "nextest":
	default:
		return fmt.Errorf("checks.test_runner: unknown runner %q (want \"cargo\" or \"nextest\")", cfg.Checks.TestRunner)
	}

	if _, err := time.ParseDuration(cfg.GC.MaxAge); err != nil {
		return fmt.Errorf("gc.max_age: %w", err)
	}

	return nil
}
