package config

import (
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"

	"github.com/kilnproject/kiln/internal/models"
)

// LoadManifest loads and parses Cargo.toml from the given filesystem. The raw
// bytes are retained on the returned value because the dependency cache key is
// computed over the exact file content, not the parsed form.
func LoadManifest(fsys fs.FS) (models.Manifest, error) {
	var m models.Manifest

	data, err := fs.ReadFile(fsys, "Cargo.toml")
	if err != nil {
		return m, fmt.Errorf("reading Cargo.toml: %w", err)
	}

	if _, err := toml.Decode(string(data), &m); err != nil {
		return m, fmt.Errorf("parsing Cargo.toml: %w", err)
	}

	if m.Package.Name == "" && m.Workspace == nil {
		return m, fmt.Errorf("Cargo.toml: missing [package] name")
	}

	m.Raw = data
	return m, nil
}

// LoadLockfile loads and parses Cargo.lock from the given filesystem.
func LoadLockfile(fsys fs.FS) (models.Lockfile, error) {
	var l models.Lockfile

	data, err := fs.ReadFile(fsys, "Cargo.lock")
	if err != nil {
		return l, fmt.Errorf("reading Cargo.lock: %w", err)
	}

	if _, err := toml.Decode(string(data), &l); err != nil {
		return l, fmt.Errorf("parsing Cargo.lock: %w", err)
	}

	l.Raw = data
	return l, nil
}
