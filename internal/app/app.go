// Package app wires all earmatch subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the audio output, the
// asset loader, the session manager and the optional introspection listener,
// Run serves until the context ends, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithOutput, WithLoader,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earmatch/internal/config"
	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/internal/health"
	"github.com/MrWong99/earmatch/internal/observe"
	"github.com/MrWong99/earmatch/internal/resilience"
	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/audio/asset"
	"github.com/MrWong99/earmatch/pkg/audio/device"
	"github.com/MrWong99/earmatch/pkg/challenge"
)

// readHeaderTimeout bounds slow clients on the introspection listener.
const readHeaderTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	level  *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	out      audio.Output
	loader   engine.Loader
	metrics  *observe.Metrics
	provider *observe.Provider
	gen      *challenge.Generator
	sessions *SessionManager

	listener net.Listener
	server   *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOutput injects an audio output instead of creating one from config.
func WithOutput(o audio.Output) Option {
	return func(a *App) { a.out = o }
}

// WithLoader injects an asset loader instead of creating one from config.
func WithLoader(l engine.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithMetrics injects a metrics sink instead of the Prometheus-backed one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGenerator injects the challenge generator shared by all trainers.
func WithGenerator(g *challenge.Generator) Option {
	return func(a *App) { a.gen = g }
}

// WithLogger sets the application logger. level, when non-nil, is the
// variable behind the logger's handler and is updated on log level reloads.
func WithLogger(l *slog.Logger, level *slog.LevelVar) Option {
	return func(a *App) {
		a.logger = l
		a.level = level
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: output, loader, telemetry,
// session manager and, when configured, binding the introspection listener.
// It does not start a session; see [App.Sessions].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	a.initOutput()
	a.initLoader()
	if err := a.initTelemetry(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	a.sessions = NewSessionManager(SessionManagerConfig{
		Output:    a.out,
		Loader:    a.loader,
		Config:    cfg,
		Metrics:   a.metrics,
		Logger:    a.logger,
		Generator: a.gen,
		OnSuccess: func(mode trainer.Mode, score int) {
			a.logger.Info("round won", "mode", mode, "score", score)
		},
	})
	a.closers = append(a.closers, func() error {
		if a.sessions.IsActive() {
			return a.sessions.Stop()
		}
		return nil
	})

	if err := a.initHTTP(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: listen %q: %w", cfg.Server.ListenAddr, err)
	}
	return a, nil
}

// initOutput creates the configured audio output. A sound card that fails to
// open is not an error here: loads then end in the error state.
func (a *App) initOutput() {
	if a.out != nil {
		return
	}
	rate := beep.SampleRate(a.cfg.Audio.SampleRate)
	switch a.cfg.Audio.Output {
	case config.OutputNone:
		a.out = device.Null{Rate: rate}
	default:
		spk := device.NewSpeaker(rate, a.cfg.Audio.Buffer())
		if err := spk.Available(); err != nil {
			a.logger.Warn("audio output unavailable, loads will fail", "err", err)
		}
		a.out = spk
		a.closers = append(a.closers, spk.Close)
	}
	a.logger.Info("audio output ready",
		"output", a.cfg.Audio.Output,
		"sample_rate", int(a.out.SampleRate()),
	)
}

// initLoader creates the caching asset loader at the output's rate, guarded
// by a circuit breaker per remote host.
func (a *App) initLoader() {
	if a.loader != nil {
		return
	}
	ac := a.cfg.Audio
	opts := []asset.Option{
		asset.WithMaxBytes(ac.MaxAssetBytes),
		asset.WithFetchTimeout(ac.FetchTimeout()),
		asset.WithResampleQuality(ac.ResampleQuality),
	}
	a.loader = resilience.NewLoader(asset.New(a.out.SampleRate(), opts...),
		resilience.WithLogger(a.logger))
}

// initTelemetry creates the metrics sink. With a listener configured, metrics
// are exported through a private Prometheus registry; otherwise they go to
// the global meter provider.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		if a.metrics == nil {
			a.metrics = observe.DefaultMetrics()
		}
		return nil
	}

	p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "earmatch", SetGlobal: true})
	if err != nil {
		return err
	}
	a.provider = p
	a.closers = append(a.closers, func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.Shutdown(sctx)
	})

	if a.metrics == nil {
		m, err := observe.NewMetrics(p.MeterProvider())
		if err != nil {
			return err
		}
		a.metrics = m
	}
	return nil
}

// initHTTP binds the /metrics, /healthz and /readyz listener when an address
// is configured.
func (a *App) initHTTP() error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	health.New(health.EngineChecker("engine", a.sessions.EngineState)).Register(mux)
	if a.provider != nil {
		mux.Handle("GET /metrics", a.provider.MetricsHandler())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.closers = append(a.closers, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics, a.logger)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	a.logger.Info("introspection listener bound", "addr", ln.Addr().String())
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session manager presentation layers drive.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Metrics returns the metrics sink shared by all engines and trainers.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Addr returns the bound introspection address, or "" when none is
// configured.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the introspection listener, if any, and blocks until ctx is
// cancelled. It returns ctx's error on a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	a.logger.Info("app running", "listen_addr", a.Addr())
	<-gctx.Done()
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyDiff applies the hot-reloadable part of a config change. Fields that
// need a restart are logged and ignored.
func (a *App) ApplyDiff(d config.ConfigDiff, next *config.Config) {
	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.SlogLevel())
		}
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ThresholdsChanged || d.GainOptionsChanged {
		a.sessions.ApplyTrainers(d.Trainers)
		a.logger.Info("trainer settings reloaded",
			"eq_success", d.Trainers.EQ.SuccessScore,
			"compression_success", d.Trainers.Compression.SuccessScore,
			"tolerance_octaves", d.Trainers.Frequency.ToleranceOctaves,
			"gain_options", d.Trainers.Gain.OptionCount,
		)
	}
	if d.CrossfadeChanged {
		a.sessions.ApplyCrossfade(time.Duration(d.NewCrossfadeMs) * time.Millisecond)
		a.logger.Info("crossfade changed", "crossfade_ms", d.NewCrossfadeMs)
	}
	if len(d.SourcesAdded) > 0 || len(d.SourcesRemoved) > 0 {
		if next != nil {
			a.sessions.ApplySources(next.Sources)
		}
		a.logger.Info("sources reloaded", "added", d.SourcesAdded, "removed", d.SourcesRemoved)
	}
	if d.RestartRequired {
		a.logger.Warn("config change requires a restart to take effect")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("listener shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
