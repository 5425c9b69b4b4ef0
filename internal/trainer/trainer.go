// Package trainer implements the four ear-training modes on top of the
// comparison engine.
//
// Each trainer owns one [engine.Engine] and a mutex-guarded state container
// holding the hidden target, the listener's current parameters, the live
// score and the round counters. Every user update replaces the state
// wholesale, retunes the engine's "user" chain and recomputes the score
// before returning, so the score a caller reads is always the score of the
// parameters that are playing.
//
// The modes are:
//
//   - [EQMatch]: match a hidden EQ stage.
//   - [FrequencySpot]: find the frequency of a hidden boost.
//   - [CompressionMatch]: match a hidden compressor.
//   - [GainDelta]: pick the level offset from four options.
//
// All trainers satisfy [Trainer], which is what presentation layers drive.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/internal/observe"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/challenge"
)

// Mode names a trainer. The string form is used in config and on the command
// line.
type Mode string

const (
	ModeEQ          Mode = "eq"
	ModeFrequency   Mode = "frequency"
	ModeCompression Mode = "compression"
	ModeGain        Mode = "gain"
)

// Modes lists every trainer mode in presentation order.
var Modes = []Mode{ModeEQ, ModeFrequency, ModeCompression, ModeGain}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeEQ, ModeFrequency, ModeCompression, ModeGain:
		return true
	}
	return false
}

// Chain names used by the trainers.
const (
	ChainTarget    = "target"
	ChainUser      = "user"
	ChainBypass    = "bypass"
	ChainBoosted   = "boosted"
	ChainReference = "reference"
	ChainProcessed = "processed"
)

// Round outcomes reported on [observe.Metrics.Rounds].
const (
	OutcomeSolved   = "solved"
	OutcomeRevealed = "revealed"
	OutcomeSkipped  = "skipped"
	OutcomeCorrect  = "correct"
	OutcomeWrong    = "wrong"
)

// CurvePoints is the number of vertices in rendered curves.
const CurvePoints = 64

// ErrRoundOver is returned by Guess and Answer once the round has been
// answered or revealed.
var ErrRoundOver = errors.New("trainer: round already finished")

// Stats holds the in-memory round counters of one trainer. They are lost on
// exit.
type Stats struct {
	Round      int // current round, starting at 1
	Solved     int // rounds won
	Streak     int // consecutive rounds won
	BestStreak int
}

// Trainer is the surface shared by every mode.
type Trainer interface {
	Mode() Mode

	// Load starts loading the source at url. See [engine.Engine.Load].
	Load(ctx context.Context, url string) error
	WaitReady(ctx context.Context) (audio.Status, error)
	Start()
	Stop()
	SetLooping(loop bool)
	Monitor(chain string) error
	Chains() []string
	EngineState() engine.State
	Subscribe() (<-chan engine.State, func())
	SetCrossfade(tau time.Duration)

	// NewRound draws a new hidden target. An unfinished round counts as
	// skipped.
	NewRound()

	// Reveal ends the round without a win and exposes the target.
	Reveal()

	Stats() Stats
	Close() error
}

// ─── Transport ────────────────────────────────────────────────────────────────

// transport forwards playback controls to the trainer's engine.
type transport[P any] struct {
	eng *engine.Engine[P]
}

func (t transport[P]) Load(ctx context.Context, url string) error { return t.eng.Load(ctx, url) }

// WaitReady blocks until the pending load settles.
func (t transport[P]) WaitReady(ctx context.Context) (audio.Status, error) {
	return t.eng.WaitReady(ctx)
}

func (t transport[P]) Start() { t.eng.Start() }

func (t transport[P]) Stop() { t.eng.Stop() }

func (t transport[P]) SetLooping(loop bool) { t.eng.SetLooping(loop) }

func (t transport[P]) Monitor(chain string) error { return t.eng.Monitor(chain) }

func (t transport[P]) Chains() []string { return t.eng.ChainNames() }

func (t transport[P]) EngineState() engine.State { return t.eng.State() }

func (t transport[P]) Subscribe() (<-chan engine.State, func()) { return t.eng.Subscribe() }

func (t transport[P]) Close() error { return t.eng.Close() }

// SetCrossfade changes the monitor time constant from the next Start on.
func (t transport[P]) SetCrossfade(tau time.Duration) { t.eng.SetTimeConstant(tau) }

// Clock returns the live graph's frame clock, or -1 when nothing plays.
func (t transport[P]) Clock() int64 { return t.eng.Clock() }

// ─── Rounds ───────────────────────────────────────────────────────────────────

// rounds is the per-trainer round bookkeeping. Callers hold the trainer lock.
type rounds struct {
	stats    Stats
	finished bool
}

// next begins a new round and reports whether the previous one was abandoned.
func (r *rounds) next() (skipped bool) {
	skipped = r.stats.Round > 0 && !r.finished
	if skipped {
		r.stats.Streak = 0
	}
	r.stats.Round++
	r.finished = false
	return skipped
}

// finish closes the current round.
func (r *rounds) finish(won bool) {
	r.finished = true
	if !won {
		r.stats.Streak = 0
		return
	}
	r.stats.Solved++
	r.stats.Streak++
	r.stats.BestStreak = max(r.stats.BestStreak, r.stats.Streak)
}

// ─── Options ──────────────────────────────────────────────────────────────────

type options struct {
	logger       *slog.Logger
	metrics      *observe.Metrics
	gen          *challenge.Generator
	successScore int
	tolerance    float64
	gainOptions  challenge.OptionsConfig
	onSuccess    func(score int)
	engineOpts   []engine.Option
}

// Option configures a trainer during construction.
type Option func(*options)

// WithLogger sets the logger shared by the trainer and its engine.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithGenerator sets the challenge generator. Use a seeded generator for
// reproducible rounds.
func WithGenerator(g *challenge.Generator) Option {
	return func(o *options) {
		o.gen = g
	}
}

// WithSuccessScore overrides the score at which a matching round is won.
// Ignored by the frequency and gain trainers.
func WithSuccessScore(s int) Option {
	return func(o *options) {
		if s > 0 {
			o.successScore = s
		}
	}
}

// WithToleranceOctaves sets how close a frequency guess must be to count as
// correct. Defaults to [DefaultToleranceOctaves].
func WithToleranceOctaves(oct float64) Option {
	return func(o *options) {
		if oct > 0 {
			o.tolerance = oct
		}
	}
}

// WithGainOptions tunes gain-delta distractor generation.
func WithGainOptions(cfg challenge.OptionsConfig) Option {
	return func(o *options) {
		o.gainOptions = cfg
	}
}

// WithOnSuccess registers fn to run once per won round, outside the trainer
// lock. fn receives the winning score.
func WithOnSuccess(fn func(score int)) Option {
	return func(o *options) {
		o.onSuccess = fn
	}
}

// WithEngineOptions passes opts through to the trainer's engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

func buildOptions(mode Mode, opts []Option) options {
	o := options{
		logger:    slog.Default(),
		tolerance: DefaultToleranceOctaves,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.gen == nil {
		o.gen = challenge.New()
	}
	o.logger = o.logger.With("mode", string(mode))
	return o
}

// engineOptions prefixes the caller's engine options with the trainer's name,
// logger and metrics.
func (o options) engineOptions(mode Mode) []engine.Option {
	return append([]engine.Option{
		engine.WithName(string(mode)),
		engine.WithLogger(o.logger),
		engine.WithMetrics(o.metrics),
	}, o.engineOpts...)
}

// maxDraws bounds how often a generated target is redrawn because the
// neutral listener parameters would already win it.
const maxDraws = 32

// retune stores p on chain. Trainers only address chains they built the
// engine with, so an error here is a programming mistake.
func retune[P any](eng *engine.Engine[P], chain string, p P) {
	if err := eng.SetParameters(chain, p); err != nil {
		panic(fmt.Sprintf("trainer: retune %s: %v", chain, err))
	}
}

// successOr returns the configured success score or def.
func (o options) successOr(def int) int {
	if o.successScore > 0 {
		return o.successScore
	}
	return def
}

func (o options) fire(score int) {
	if o.onSuccess != nil {
		o.onSuccess(score)
	}
}
