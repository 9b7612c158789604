package models

import "testing"

func TestErrorTypeFatal(t *testing.T) {
	tests := []struct {
		errType ErrorType
		fatal   bool
	}{
		{ErrToolchainResolution, true},
		{ErrDependencyResolution, true},
		{ErrTaskFailure, false},
		{ErrTaskTimeout, false},
		{ErrFormatMismatch, false},
		{ErrWorkspaceSetup, false},
		{ErrInternalError, false},
	}
	for _, tt := range tests {
		if got := tt.errType.Fatal(); got != tt.fatal {
			t.Errorf("%s.Fatal() = %v, want %v", tt.errType, got, tt.fatal)
		}
	}
}

func TestToolchainEnv(t *testing.T) {
	tc := Toolchain{Channel: "1.84.0"}
	env := tc.Env()
	if env["RUSTUP_TOOLCHAIN"] != "1.84.0" {
		t.Errorf("RUSTUP_TOOLCHAIN = %q, want 1.84.0", env["RUSTUP_TOOLCHAIN"])
	}

	// Env returns a fresh map per call so callers can extend it freely.
	env["CARGO_TARGET_DIR"] = "/tmp/x"
	if len(tc.Env()) != 1 {
		t.Error("mutating a returned env leaked into the toolchain")
	}
}

func TestBinaryName(t *testing.T) {
	m := Manifest{Package: PackageSection{Name: "git-dit"}}
	if m.BinaryName() != "git-dit" {
		t.Errorf("BinaryName() = %q, want git-dit", m.BinaryName())
	}

	m.Bin = []BinTarget{{Name: "dit", Path: "src/bin/dit.rs"}}
	if m.BinaryName() != "dit" {
		t.Errorf("BinaryName() = %q, want dit", m.BinaryName())
	}
}

func TestShortIdentifiers(t *testing.T) {
	long := "0123456789abcdef0123456789abcdef"
	if got := (Toolchain{Identity: long}).ShortIdentity(); got != "0123456789ab" {
		t.Errorf("ShortIdentity() = %q", got)
	}
	if got := (DepCache{Key: "abc"}).ShortKey(); got != "abc" {
		t.Errorf("ShortKey() = %q, want abc", got)
	}
	if got := (&Snapshot{Hash: long}).ShortHash(); got != "0123456789ab" {
		t.Errorf("ShortHash() = %q", got)
	}
}

func TestSnapshotLookup(t *testing.T) {
	snap := &Snapshot{Entries: []FileEntry{
		{Path: "Cargo.toml", Hash: "h1"},
		{Path: "src/main.rs", Hash: "h2"},
	}}

	e, ok := snap.Lookup("src/main.rs")
	if !ok || e.Hash != "h2" {
		t.Errorf("Lookup(src/main.rs) = %+v, %v", e, ok)
	}
	if _, ok := snap.Lookup("absent.rs"); ok {
		t.Error("Lookup found an absent path")
	}
}

func TestTaskResultFailed(t *testing.T) {
	if (&TaskResult{Status: StatusSuccess}).Failed() {
		t.Error("success reported as failed")
	}
	if !(&TaskResult{Status: StatusFailure}).Failed() {
		t.Error("failure not reported as failed")
	}
	if (&TaskResult{Status: StatusSkipped}).Failed() {
		t.Error("skipped reported as failed")
	}
}
