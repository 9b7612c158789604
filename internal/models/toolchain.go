package models

// ToolchainSpec is the parsed rust-toolchain.toml pin.
type ToolchainSpec struct {
	Channel    string   `toml:"channel"`
	Components []string `toml:"components,omitempty"`
	Profile    string   `toml:"profile,omitempty"`
	Targets    []string `toml:"targets,omitempty"`
}

// Toolchain is a resolved, immutable compiler/linter/formatter/doc-generator
// bundle. Identity is deterministic for a given spec: two resolutions of the
// same pin yield the same identity, which is what lets the dependency cache
// key incorporate the toolchain.
type Toolchain struct {
	Channel    string   `json:"channel"`
	Version    string   `json:"version"`     // full `rustc --version --verbose` commit-hash line
	Identity   string   `json:"identity"`    // sha256 over channel, components and version
	Components []string `json:"components"`
}

// Env returns the process environment entries that select this toolchain for
// every cargo invocation.
func (t Toolchain) Env() map[string]string {
	return map[string]string{"RUSTUP_TOOLCHAIN": t.Channel}
}

// ShortIdentity returns a truncated identity suitable for directory names and
// log lines.
func (t Toolchain) ShortIdentity() string {
	if len(t.Identity) > 12 {
		return t.Identity[:12]
	}
	return t.Identity
}
