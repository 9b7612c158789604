package config

import (
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"

	"github.com/kilnproject/kiln/internal/models"
)

// toolchainFile mirrors the rust-toolchain.toml layout, which nests the spec
// under a [toolchain] table.
type toolchainFile struct {
	Toolchain models.ToolchainSpec `toml:"toolchain"`
}

// LoadToolchainSpec loads and parses a rust-toolchain.toml pin from the given
// filesystem. The linter, formatter and doc generator ride along as rustup
// components, so a pin without explicit components still yields a complete
// bundle via defaults.
func LoadToolchainSpec(fsys fs.FS, path string) (models.ToolchainSpec, error) {
	var f toolchainFile

	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return f.Toolchain, fmt.Errorf("reading toolchain pin %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return f.Toolchain, fmt.Errorf("parsing toolchain pin %s: %w", path, err)
	}

	spec := f.Toolchain
	if spec.Channel == "" {
		return spec, fmt.Errorf("toolchain pin %s: missing channel", path)
	}
	if !md.IsDefined("toolchain", "components") {
		spec.Components = []string{"clippy", "rustfmt"}
	}
	if spec.Profile == "" {
		spec.Profile = "minimal"
	}

	return spec, nil
}
