package models

// Manifest holds the fields of Cargo.toml that the pipeline itself reads.
// Everything else in the manifest is opaque: it participates in the cache key
// as raw bytes, never as parsed structure.
type Manifest struct {
	Package      PackageSection      `toml:"package"`
	Bin          []BinTarget         `toml:"bin,omitempty"`
	Dependencies map[string]any      `toml:"dependencies,omitempty"`
	Features     map[string][]string `toml:"features,omitempty"`
	Workspace    *WorkspaceSection   `toml:"workspace,omitempty"`
	Raw          []byte              `toml:"-" json:"-"` // exact file bytes, cache key input
}

type PackageSection struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition,omitempty"`
}

type BinTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path,omitempty"`
}

type WorkspaceSection struct {
	Members []string `toml:"members,omitempty"`
}

// BinaryName returns the name of the binary the package build produces: the
// first [[bin]] target when declared, otherwise the package name.
func (m Manifest) BinaryName() string {
	if len(m.Bin) > 0 && m.Bin[0].Name != "" {
		return m.Bin[0].Name
	}
	return m.Package.Name
}

// Lockfile holds the parsed Cargo.lock. Like the manifest, only the raw bytes
// feed the cache key; the parsed packages exist for diagnostics.
type Lockfile struct {
	Version  int             `toml:"version"`
	Packages []LockedPackage `toml:"package"`
	Raw      []byte          `toml:"-" json:"-"`
}

type LockedPackage struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Source   string `toml:"source,omitempty"`
	Checksum string `toml:"checksum,omitempty"`
}
