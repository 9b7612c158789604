// Package toolchain resolves a pinned rustup toolchain into an immutable
// bundle of compiler, linter, formatter and doc generator.
package toolchain

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/runner"
)

// ResolutionError means the toolchain pin is unsatisfiable. It is fatal to
// the whole pipeline: every downstream task needs the bundle.
type ResolutionError struct {
	Channel string
	Reason  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving toolchain %q: %s", e.Channel, e.Reason)
}

// Resolver resolves toolchain pins via rustup.
type Resolver struct {
	runner runner.Runner
}

// NewResolver creates a Resolver backed by the given runner.
func NewResolver(r runner.Runner) *Resolver {
	return &Resolver{runner: r}
}

// Resolve installs the pinned channel with its components and returns the
// resolved bundle. Resolution is deterministic: the same pin yields the same
// identity, because the identity hashes the pin plus the exact compiler
// version rustup produced for it.
func (r *Resolver) Resolve(ctx context.Context, spec models.ToolchainSpec) (models.Toolchain, error) {
	var tc models.Toolchain

	if spec.Channel == "" {
		return tc, &ResolutionError{Channel: "", Reason: "empty channel"}
	}

	args := []string{"toolchain", "install", spec.Channel, "--profile", profileOrDefault(spec)}
	for _, c := range spec.Components {
		args = append(args, "--component", c)
	}

	var out bytes.Buffer
	res, err := r.runner.Run(ctx, runner.Spec{
		Command: "rustup",
		Args:    args,
		Stdout:  &out,
		Stderr:  &out,
	})
	if err != nil {
		return tc, &ResolutionError{Channel: spec.Channel, Reason: err.Error()}
	}
	if res.ExitCode != 0 {
		return tc, &ResolutionError{
			Channel: spec.Channel,
			Reason:  fmt.Sprintf("rustup exited with code %d: %s", res.ExitCode, strings.TrimSpace(out.String())),
		}
	}

	version, err := r.compilerVersion(ctx, spec.Channel)
	if err != nil {
		return tc, &ResolutionError{Channel: spec.Channel, Reason: err.Error()}
	}

	tc = models.Toolchain{
		Channel:    spec.Channel,
		Version:    version,
		Components: spec.Components,
		Identity:   identity(spec, version),
	}

	slog.Debug("toolchain resolved",
		"channel", tc.Channel,
		"version", tc.Version,
		"identity", tc.ShortIdentity())

	return tc, nil
}

// compilerVersion asks the resolved compiler for its exact version line.
func (r *Resolver) compilerVersion(ctx context.Context, channel string) (string, error) {
	var out bytes.Buffer
	res, err := r.runner.Run(ctx, runner.Spec{
		Command: "rustc",
		Args:    []string{"--version", "--verbose"},
		Env:     map[string]string{"RUSTUP_TOOLCHAIN": channel},
		Stdout:  &out,
	})
	if err != nil {
		return "", fmt.Errorf("querying compiler version: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("rustc --version exited with code %d", res.ExitCode)
	}

	version := strings.TrimSpace(out.String())
	if version == "" {
		return "", fmt.Errorf("rustc reported an empty version")
	}
	return version, nil
}

// identity derives the deterministic bundle identity from the pin and the
// compiler's full version output.
func identity(spec models.ToolchainSpec, version string) string {
	components := append([]string(nil), spec.Components...)
	sort.Strings(components)

	h := sha256.New()
	fmt.Fprintf(h, "channel=%s\n", spec.Channel)
	fmt.Fprintf(h, "components=%s\n", strings.Join(components, ","))
	fmt.Fprintf(h, "version=%s\n", version)
	return hex.EncodeToString(h.Sum(nil))
}

func profileOrDefault(spec models.ToolchainSpec) string {
	if spec.Profile != "" {
		return spec.Profile
	}
	return "minimal"
}
