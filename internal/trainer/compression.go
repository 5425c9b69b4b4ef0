package trainer

import (
	"context"
	"sync"

	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/audio/dsp"
	"github.com/MrWong99/earmatch/pkg/curve"
	"github.com/MrWong99/earmatch/pkg/score"
	"github.com/MrWong99/earmatch/pkg/types"
)

var _ Trainer = (*CompressionMatch)(nil)

// CompressionSnapshot is a consistent view of a compression round.
type CompressionSnapshot struct {
	Stats
	User    types.CompressionSettings
	Score   int
	Success bool

	// Revealed is true once the round was won or revealed. Target,
	// TargetCurve and Drift are zero until then.
	Revealed    bool
	Target      types.CompressionSettings
	Drift       float64
	UserCurve   []curve.Point
	TargetCurve []curve.Point
}

// CompressionMatch is the compressor-matching trainer. Its chains are
// "target", "user" and "bypass".
type CompressionMatch struct {
	transport[types.CompressionSettings]
	opts options

	mu        sync.Mutex
	target    types.CompressionSettings
	user      types.CompressionSettings
	score     int
	success   bool
	revealed  bool
	threshold int
	rounds    rounds
}

// NewCompressionMatch creates a compression trainer and starts round 1.
func NewCompressionMatch(out audio.Output, loader engine.Loader, opts ...Option) *CompressionMatch {
	o := buildOptions(ModeCompression, opts)
	t := &CompressionMatch{
		opts:      o,
		user:      types.DefaultCompression(),
		threshold: o.successOr(score.CompressionSuccessScore),
	}
	t.target = t.drawLocked()
	t.eng = engine.New(out, loader, []engine.Chain[types.CompressionSettings]{
		{Name: ChainTarget, Params: t.target, Build: dsp.NewCompressorNode},
		{Name: ChainUser, Params: t.user, Build: dsp.NewCompressorNode},
		{Name: ChainBypass, Params: t.user, Build: dsp.NewBypassNode[types.CompressionSettings]},
	}, o.engineOptions(ModeCompression)...)

	t.mu.Lock()
	t.beginLocked(t.target)
	t.mu.Unlock()
	return t
}

// Mode implements [Trainer].
func (t *CompressionMatch) Mode() Mode { return ModeCompression }

// NewRound draws a fresh target and resets the listener to the neutral
// compressor.
func (t *CompressionMatch) NewRound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(t.drawLocked())
}

// drawLocked draws a target the neutral compressor does not already match.
// After maxDraws misses the last draw is kept.
func (t *CompressionMatch) drawLocked() types.CompressionSettings {
	c := t.opts.gen.Compression()
	for i := 1; i < maxDraws && score.Compression(c, types.DefaultCompression()) >= t.threshold; i++ {
		c = t.opts.gen.Compression()
	}
	return c
}

// SetTarget starts a new round with an explicit target. The target is used
// as given; success is evaluated from the first listener update on.
func (t *CompressionMatch) SetTarget(c types.CompressionSettings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(c)
}

func (t *CompressionMatch) beginLocked(target types.CompressionSettings) {
	if t.rounds.next() {
		t.opts.metrics.RecordRound(context.Background(), string(ModeCompression), OutcomeSkipped)
	}
	t.target = target.Clamp()
	t.user = types.DefaultCompression()
	t.success = false
	t.revealed = false
	retune(t.eng, ChainTarget, t.target)
	retune(t.eng, ChainUser, t.user)
	t.score = score.Compression(t.target, t.user)
	t.opts.logger.Debug("round started", "round", t.rounds.stats.Round)
}

// SetUser replaces the listener's compressor, retunes the live user chain
// and rescores.
func (t *CompressionMatch) SetUser(c types.CompressionSettings) CompressionSnapshot {
	return t.update(func(types.CompressionSettings) types.CompressionSettings { return c })
}

func (t *CompressionMatch) update(fn func(types.CompressionSettings) types.CompressionSettings) CompressionSnapshot {
	t.mu.Lock()
	c := fn(t.user).Clamp()
	t.user = c
	retune(t.eng, ChainUser, c)
	t.score = score.Compression(t.target, c)

	won := false
	if !t.rounds.finished && t.score >= t.threshold {
		t.success, t.revealed, won = true, true, true
		t.rounds.finish(true)
		t.opts.metrics.RecordRound(context.Background(), string(ModeCompression), OutcomeSolved)
		t.opts.metrics.RecordScore(context.Background(), string(ModeCompression), t.score)
		t.opts.logger.Info("round solved", "round", t.rounds.stats.Round, "score", t.score, "target", t.target)
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if won {
		t.opts.fire(snap.Score)
	}
	return snap
}

// SetThreshold changes only the listener's threshold in dBFS.
func (t *CompressionMatch) SetThreshold(db float64) CompressionSnapshot {
	return t.update(func(c types.CompressionSettings) types.CompressionSettings { return c.WithThreshold(db) })
}

// SetRatio changes only the listener's ratio.
func (t *CompressionMatch) SetRatio(r float64) CompressionSnapshot {
	return t.update(func(c types.CompressionSettings) types.CompressionSettings { return c.WithRatio(r) })
}

// SetAttackMs changes only the listener's attack, given in milliseconds.
func (t *CompressionMatch) SetAttackMs(ms float64) CompressionSnapshot {
	return t.update(func(c types.CompressionSettings) types.CompressionSettings { return c.WithAttackMs(ms) })
}

// SetReleaseMs changes only the listener's release, given in milliseconds.
func (t *CompressionMatch) SetReleaseMs(ms float64) CompressionSnapshot {
	return t.update(func(c types.CompressionSettings) types.CompressionSettings { return c.WithReleaseMs(ms) })
}

// SetMakeup changes only the listener's makeup gain.
func (t *CompressionMatch) SetMakeup(db float64) CompressionSnapshot {
	return t.update(func(c types.CompressionSettings) types.CompressionSettings { return c.WithMakeup(db) })
}

// User returns the listener's current compressor.
func (t *CompressionMatch) User() types.CompressionSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.user
}

// Reveal ends the round without a win.
func (t *CompressionMatch) Reveal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rounds.finished {
		return
	}
	t.revealed = true
	t.rounds.finish(false)
	t.opts.metrics.RecordRound(context.Background(), string(ModeCompression), OutcomeRevealed)
	t.opts.metrics.RecordScore(context.Background(), string(ModeCompression), t.score)
	t.opts.logger.Info("round revealed", "round", t.rounds.stats.Round, "score", t.score, "target", t.target)
}

// SetSuccessScore changes the winning score from the next update on.
func (t *CompressionMatch) SetSuccessScore(s int) {
	if s <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = s
}

// Snapshot returns the current round state.
func (t *CompressionMatch) Snapshot() CompressionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Stats implements [Trainer].
func (t *CompressionMatch) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rounds.stats
}

func (t *CompressionMatch) snapshotLocked() CompressionSnapshot {
	s := CompressionSnapshot{
		Stats:     t.rounds.stats,
		User:      t.user,
		Score:     t.score,
		Success:   t.success,
		Revealed:  t.revealed,
		UserCurve: curve.CompressionCurve(t.user, CurvePoints),
	}
	if t.revealed {
		s.Target = t.target
		s.Drift = curve.Drift(t.target, t.user, curve.DriftPoints)
		s.TargetCurve = curve.CompressionCurve(t.target, CurvePoints)
	}
	return s
}
