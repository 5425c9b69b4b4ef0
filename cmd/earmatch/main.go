// Command earmatch is the ear-training game: it plays a source through a
// hidden transformation and scores how closely the listener matches it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earmatch/internal/app"
	"github.com/MrWong99/earmatch/internal/config"
	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/internal/tui"
)

var version = "0.1.0"

// CLI defines the command-line interface
type CLI struct {
	Version  bool   `short:"v" help:"Show version information"`
	Config   string `short:"c" type:"path" help:"Path to the YAML config file (optional, hot-reloaded)"`
	Mode     string `short:"m" enum:"eq,frequency,compression,gain" default:"eq" help:"Trainer mode (${enum})"`
	Source   string `short:"s" help:"Source name from the config, URL or file path (default: first configured source)"`
	Headless bool   `help:"Run without the terminal UI; only the introspection listener is served"`
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	cli := &CLI{}
	kong.Parse(cli,
		kong.Name("earmatch"),
		kong.Description("Ear training for EQ, frequency, compression and level"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if cli.Version {
		fmt.Println("earmatch", version)
		return 0
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level is a variable so config reloads can change it.
	level := new(slog.LevelVar)
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(bootstrap)

	// ── Configuration ─────────────────────────────────────────────────────────
	var (
		application atomic.Pointer[app.App]
		watcher     *config.Watcher
		cfg         = config.Default()
	)
	if cli.Config != "" {
		w, err := config.NewWatcher(cli.Config, func(old, new *config.Config) {
			if a := application.Load(); a != nil {
				a.ApplyDiff(config.Diff(old, new), new)
			}
		})
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "earmatch: config file %q not found\n", cli.Config)
			} else {
				fmt.Fprintf(os.Stderr, "earmatch: %v\n", err)
			}
			return 1
		}
		watcher = w
		defer watcher.Stop()
		cfg = w.Current()
	}
	level.Set(cfg.Server.LogLevel.SlogLevel())

	logger, closeLog, err := newLogger(cfg.Server, level, !cli.Headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "earmatch: open log file: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("earmatch starting",
		"version", version,
		"config", cli.Config,
		"mode", cli.Mode,
		"output", cfg.Audio.Output,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.WithLogger(logger, level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		fmt.Fprintf(os.Stderr, "earmatch: %v\n", err)
		return 1
	}
	application.Store(a)

	source := cli.Source
	if source == "" && len(cfg.Sources) > 0 {
		source = cfg.Sources[0].Name
	}
	if looksLikeName(source) && cfg.Source(source) == source {
		if hint, ok := cfg.SuggestSource(source); ok {
			fmt.Fprintf(os.Stderr, "earmatch: unknown source %q, did you mean %q?\n", source, hint)
			_ = a.Shutdown(context.Background())
			return 1
		}
	}
	if err := a.Sessions().Start(ctx, trainer.Mode(cli.Mode), source); err != nil {
		slog.Error("failed to start session", "err", err)
		fmt.Fprintf(os.Stderr, "earmatch: %v\n", err)
		_ = a.Shutdown(context.Background())
		return 1
	}
	if cli.Headless {
		printStartupSummary(cfg, cli.Mode, a.Sessions().Info().Source)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return a.Run(gctx) })
	if !cli.Headless {
		g.Go(func() error {
			defer cancel()
			p := tea.NewProgram(tui.NewModel(a.Sessions()), tea.WithAltScreen(), tea.WithContext(gctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal ui: %w", err)
			}
			return nil
		})
	}

	exit := 0
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		fmt.Fprintf(os.Stderr, "earmatch: %v\n", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. While the terminal UI owns the screen,
// logs go to the configured log file, or nowhere.
func newLogger(srv config.ServerConfig, level *slog.LevelVar, tuiActive bool) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case srv.LogFile != "":
		f, err := os.OpenFile(srv.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closeFn = func() { _ = f.Close() }
	case tuiActive:
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// looksLikeName reports whether s reads as a source name rather than a URL or
// file path.
func looksLikeName(s string) bool {
	return s != "" && !strings.ContainsAny(s, "./:\\")
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, mode, source string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         earmatch — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mode", mode)
	printRow("Source", source)
	printRow("Output", string(cfg.Audio.Output))
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Sources", fmt.Sprintf("%d configured", len(cfg.Sources)))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(none)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}
