package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/kilnproject/kiln/internal/cachestore"
	"github.com/kilnproject/kiln/internal/config"
	"github.com/kilnproject/kiln/internal/models"
	"github.com/kilnproject/kiln/internal/pipeline"
	"github.com/kilnproject/kiln/internal/publish"
	"github.com/kilnproject/kiln/internal/runner"
	"github.com/kilnproject/kiln/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Pipeline configuration file path" default:"kiln.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct{} `cmd:"" help:"Run the package build task only"`

	Check struct {
		Names []string `arg:"" optional:"" help:"Check names to run (default: all members)"`
	} `cmd:"" help:"Run the verification check set"`

	Package struct{} `cmd:"" help:"Build and publish the installable package"`

	Run struct {
		Args []string `arg:"" optional:"" passthrough:"" help:"Arguments passed to the app"`
	} `cmd:"" help:"Launch the app entry point"`

	Shell struct{} `cmd:"" help:"Enter the interactive dev shell"`

	GC struct {
		MaxAge time.Duration `help:"Prune caches unused for longer than this (overrides config)"`
		Keep   int           `help:"Most recent caches always kept (overrides config)" default:"-1"`
	} `cmd:"" help:"Prune stale dependency caches"`

	Watch struct{} `cmd:"" help:"Re-run the check set whenever sources change"`
}

func main() {
	kctx := kong.Parse(&CLI)

	// Optional .env next to the invocation; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadPipelineConfig(CLI.Config)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(CLI.Verbose, cfg.LogLevel),
	})))

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()
	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	if err := run(ctx, kctx.Command(), cfg); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg models.PipelineConfig) error {
	p, err := pipeline.New(cfg, runner.NewLocal())
	if err != nil {
		return err
	}
	defer p.Close()

	pub := publish.NewPublisher(runner.NewLocal(), cfg.OutDir)

	switch command {
	case "build":
		report, err := p.RunChecks(ctx, []string{"build"})
		printChecks(report)
		return err

	case "check", "check <names>":
		report, err := p.RunChecks(ctx, CLI.Check.Names)
		printChecks(report)
		return err

	case "package":
		in, err := p.Prepare(ctx)
		if err != nil {
			return err
		}
		artifact, err := pub.Package(ctx, in.Manifest, in.Snapshot, in.Cache, in.Toolchain, cfg.Checks)
		if err != nil {
			return err
		}
		fmt.Printf("Published %s %s -> %s\n", artifact.Name, artifact.Version, artifact.BinPath)
		return nil

	case "run", "run <args>":
		in, err := p.Prepare(ctx)
		if err != nil {
			return err
		}
		artifact, err := pub.Package(ctx, in.Manifest, in.Snapshot, in.Cache, in.Toolchain, cfg.Checks)
		if err != nil {
			return err
		}
		code, err := pub.RunApp(ctx, pub.App(artifact), CLI.Run.Args)
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil

	case "shell":
		in, err := p.Prepare(ctx)
		if err != nil {
			return err
		}
		desc := pub.DevShell(in.Toolchain, cfg.DevShell)
		code, err := pub.EnterShell(ctx, desc)
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil

	case "gc":
		pruned, err := p.Store().Prune(prunePolicy(cfg, CLI.GC.MaxAge, CLI.GC.Keep))
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d dependency cache(s)\n", len(pruned))
		return nil

	case "watch":
		w, err := watch.New(cfg.Workspace, func(ctx context.Context) {
			report, err := p.RunChecks(ctx, nil)
			printChecks(report)
			if err != nil {
				slog.Error("check set failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// logLevel resolves the slog level: the verbose flag wins, then the
// configured level. Unrecognized config values fall back to info.
func logLevel(verbose bool, configured string) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(configured) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// prunePolicy derives the gc policy from the configured values, with
// explicitly passed flags winning. Keep uses -1 as its unset sentinel so that
// --keep=0 remains expressible.
func prunePolicy(cfg models.PipelineConfig, flagMaxAge time.Duration, flagKeep int) cachestore.PrunePolicy {
	maxAge, _ := time.ParseDuration(cfg.GC.MaxAge) // validated at config load
	policy := cachestore.PrunePolicy{MaxAge: maxAge, Keep: cfg.GC.Keep}
	if flagMaxAge > 0 {
		policy.MaxAge = flagMaxAge
	}
	if flagKeep >= 0 {
		policy.Keep = flagKeep
	}
	return policy
}

// printChecks writes the per-check summary. Every member's own status is
// shown, pass or fail.
func printChecks(report *models.RunReport) {
	if report == nil || report.CheckSet == nil {
		return
	}

	names := make([]string, 0, len(report.CheckSet.Checks))
	for name := range report.CheckSet.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\nCheck set: %s\n", report.CheckSet.Name)
	for _, name := range names {
		check := report.CheckSet.Checks[name]
		status := string(check.Status)
		if check.Error != nil {
			status = fmt.Sprintf("%s (%s)", status, check.Error.Type)
		}
		fmt.Printf("  %-20s %s\n", name, status)
	}
	fmt.Printf("Cache reused: %v\n", report.CacheReused)
	fmt.Printf("Duration: %.2fs\n", report.TotalDurationSec)
}
