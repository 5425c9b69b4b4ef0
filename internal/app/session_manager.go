package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/earmatch/internal/config"
	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/internal/observe"
	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/challenge"
)

// SessionInfo holds metadata about the active training session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// Mode is the trainer mode being played.
	Mode trainer.Mode

	// Source is the resolved URL of the loaded source, or empty if none was
	// requested yet.
	Source string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager manages the lifecycle of training sessions.
// Only one session, and so one trainer and one engine, is active at a time.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu      sync.Mutex
	active  bool
	info    SessionInfo
	trainer trainer.Trainer

	// Tunables that hot reload updates; applied to every new trainer.
	trainers  config.TrainersConfig
	crossfade time.Duration
	loop      bool

	// Dependencies injected at construction.
	out       audio.Output
	loader    engine.Loader
	cfg       *config.Config
	metrics   *observe.Metrics
	logger    *slog.Logger
	gen       *challenge.Generator
	onSuccess func(mode trainer.Mode, score int)
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Output  audio.Output
	Loader  engine.Loader
	Config  *config.Config
	Metrics *observe.Metrics
	Logger  *slog.Logger

	// Generator is shared by every trainer the manager creates. Nil means a
	// randomly seeded generator.
	Generator *challenge.Generator

	// OnSuccess is called once per won round, outside any lock.
	OnSuccess func(mode trainer.Mode, score int)
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Generator == nil {
		cfg.Generator = challenge.New()
	}
	// Private copy: sources are replaced on hot reload.
	own := *cfg.Config
	own.Sources = append([]config.SourceConfig(nil), cfg.Config.Sources...)
	return &SessionManager{
		trainers:  cfg.Config.Trainers,
		crossfade: cfg.Config.Audio.Crossfade(),
		loop:      cfg.Config.Audio.Loop,
		out:       cfg.Output,
		loader:    cfg.Loader,
		cfg:       &own,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		gen:       cfg.Generator,
		onSuccess: cfg.OnSuccess,
	}
}

// Start begins a new session in mode. If source is non-empty it is resolved
// against the configured sources and loading starts in the background.
//
// Returns an error if a session is already active or mode is unknown.
func (sm *SessionManager) Start(ctx context.Context, mode trainer.Mode, source string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return fmt.Errorf("session: a session is already active (id=%s)", sm.info.SessionID)
	}
	return sm.startLocked(ctx, mode, source)
}

func (sm *SessionManager) startLocked(ctx context.Context, mode trainer.Mode, source string) error {
	tr, err := sm.buildTrainer(mode)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	info := SessionInfo{
		SessionID: fmt.Sprintf("session-%s-%s", mode, now.Format("20060102T150405Z")),
		Mode:      mode,
		StartedAt: now,
	}
	if source != "" {
		info.Source = sm.cfg.Source(source)
		if err := tr.Load(ctx, info.Source); err != nil {
			_ = tr.Close()
			return fmt.Errorf("session: load %q: %w", info.Source, err)
		}
	}

	sm.active = true
	sm.trainer = tr
	sm.info = info

	sm.logger.Info("session started",
		"session_id", info.SessionID,
		"mode", mode,
		"source", info.Source,
	)
	return nil
}

// Stop ends the active session and releases its engine.
//
// Returns an error if no session is active.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: no active session to stop")
	}
	sm.stopLocked()
	return nil
}

func (sm *SessionManager) stopLocked() {
	id := sm.info.SessionID
	st := sm.trainer.Stats()
	if err := sm.trainer.Close(); err != nil {
		sm.logger.Warn("session: trainer close error", "session_id", id, "err", err)
	}
	sm.active = false
	sm.trainer = nil
	sm.info = SessionInfo{}

	sm.logger.Info("session stopped",
		"session_id", id,
		"rounds", st.Round,
		"solved", st.Solved,
		"best_streak", st.BestStreak,
	)
}

// Switch replaces the active session with a new one in mode, keeping the
// current source. With no active session it behaves like Start without a
// source.
func (sm *SessionManager) Switch(ctx context.Context, mode trainer.Mode) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !mode.IsValid() {
		return fmt.Errorf("session: unknown mode %q", mode)
	}
	var source string
	if sm.active {
		source = sm.info.Source
		sm.stopLocked()
	}
	return sm.startLocked(ctx, mode, source)
}

// LoadSource resolves source against the configured sources and loads it into
// the active trainer.
func (sm *SessionManager) LoadSource(ctx context.Context, source string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: no active session")
	}
	url := sm.cfg.Source(source)
	if err := sm.trainer.Load(ctx, url); err != nil {
		return fmt.Errorf("session: load %q: %w", url, err)
	}
	sm.info.Source = url
	return nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Trainer returns the active session's trainer.
// Returns nil if no session is active.
func (sm *SessionManager) Trainer() trainer.Trainer {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.trainer
}

// EngineState returns the active engine's state, or the idle state when no
// session is running. It backs the readiness probe.
func (sm *SessionManager) EngineState() engine.State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.active {
		return engine.State{}
	}
	return sm.trainer.EngineState()
}

// ApplyTrainers updates success scores, frequency tolerance and distractor
// generation on the active trainer and on every trainer created later.
func (sm *SessionManager) ApplyTrainers(tc config.TrainersConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.trainers = tc
	if !sm.active {
		return
	}
	switch t := sm.trainer.(type) {
	case *trainer.EQMatch:
		t.SetSuccessScore(tc.EQ.SuccessScore)
	case *trainer.CompressionMatch:
		t.SetSuccessScore(tc.Compression.SuccessScore)
	case *trainer.FrequencySpot:
		t.SetToleranceOctaves(tc.Frequency.ToleranceOctaves)
	case *trainer.GainDelta:
		t.SetGainOptions(gainOptions(tc.Gain))
	}
}

// ApplySources replaces the named sources used to resolve Start, Switch and
// LoadSource arguments. The loaded source is kept. URLs no source refers to
// any more are dropped from the loader's cache when it keeps one.
func (sm *SessionManager) ApplySources(sources []config.SourceConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	keep := make(map[string]bool, len(sources)+1)
	for _, s := range sources {
		keep[s.URL] = true
	}
	keep[sm.info.Source] = true
	if f, ok := sm.loader.(forgetter); ok {
		for _, s := range sm.cfg.Sources {
			if !keep[s.URL] {
				f.Forget(s.URL)
				keep[s.URL] = true
			}
		}
	}
	sm.cfg.Sources = append([]config.SourceConfig(nil), sources...)
}

// forgetter is implemented by loaders that cache decoded sources.
type forgetter interface {
	Forget(url string)
}

// ApplyCrossfade changes the monitor time constant. A graph already playing
// keeps its old value until the next Start.
func (sm *SessionManager) ApplyCrossfade(tau time.Duration) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.crossfade = tau
	if sm.active {
		sm.trainer.SetCrossfade(tau)
	}
}

// buildTrainer creates the trainer for mode with the manager's current
// tunables. Caller must hold sm.mu.
func (sm *SessionManager) buildTrainer(mode trainer.Mode) (trainer.Trainer, error) {
	opts := []trainer.Option{
		trainer.WithLogger(sm.logger),
		trainer.WithGenerator(sm.gen),
		trainer.WithEngineOptions(
			engine.WithTimeConstant(sm.crossfade),
			engine.WithLooping(sm.loop),
		),
	}
	if sm.metrics != nil {
		opts = append(opts, trainer.WithMetrics(sm.metrics))
	}
	if fn := sm.onSuccess; fn != nil {
		opts = append(opts, trainer.WithOnSuccess(func(score int) { fn(mode, score) }))
	}

	switch mode {
	case trainer.ModeEQ:
		opts = append(opts, trainer.WithSuccessScore(sm.trainers.EQ.SuccessScore))
		return trainer.NewEQMatch(sm.out, sm.loader, opts...), nil
	case trainer.ModeCompression:
		opts = append(opts, trainer.WithSuccessScore(sm.trainers.Compression.SuccessScore))
		return trainer.NewCompressionMatch(sm.out, sm.loader, opts...), nil
	case trainer.ModeFrequency:
		opts = append(opts, trainer.WithToleranceOctaves(sm.trainers.Frequency.ToleranceOctaves))
		return trainer.NewFrequencySpot(sm.out, sm.loader, opts...), nil
	case trainer.ModeGain:
		opts = append(opts, trainer.WithGainOptions(gainOptions(sm.trainers.Gain)))
		return trainer.NewGainDelta(sm.out, sm.loader, opts...), nil
	default:
		return nil, fmt.Errorf("session: unknown mode %q", mode)
	}
}

// gainOptions converts the gain config section to generator options.
func gainOptions(g config.GainConfig) challenge.OptionsConfig {
	return challenge.OptionsConfig{
		Count:         g.OptionCount,
		MinSeparation: g.MinSeparationDB,
		MaxAttempts:   g.MaxAttempts,
	}
}
