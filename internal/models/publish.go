package models

import "time"

// PackageArtifact describes an installable unit produced from the package
// build's output.
type PackageArtifact struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	BinPath     string    `json:"bin_path"`
	ToolchainID string    `json:"toolchain_id"`
	CacheKey    string    `json:"cache_key"`
	BuiltAt     time.Time `json:"built_at"`
}

// AppDescriptor is a launchable entry point referencing a package artifact.
type AppDescriptor struct {
	Name    string `json:"name"`
	Entry   string `json:"entry"` // path to the executable
	Package string `json:"package"`
}

// DevShellDescriptor is a declarative interactive-environment description:
// the resolved toolchain plus auxiliary developer tools. There is no build
// step behind it.
type DevShellDescriptor struct {
	Shell        string            `json:"shell"`
	Env          map[string]string `json:"env"`
	Tools        []string          `json:"tools"`
	MissingTools []string          `json:"missing_tools,omitempty"`
}
