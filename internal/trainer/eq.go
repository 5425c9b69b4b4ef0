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

var _ Trainer = (*EQMatch)(nil)

// EQSnapshot is a consistent view of an EQ round.
type EQSnapshot struct {
	Stats
	User    types.FilterSettings
	Score   int
	Success bool

	// Revealed is true once the round was won or revealed. Target and
	// TargetCurve are zero until then.
	Revealed    bool
	Target      types.FilterSettings
	UserCurve   []curve.Point
	TargetCurve []curve.Point
}

// EQMatch is the EQ-matching trainer. The engine plays the source through the
// chains "target" (hidden stage), "user" (listener's stage) and "bypass".
type EQMatch struct {
	transport[types.FilterSettings]
	opts options

	mu        sync.Mutex
	target    types.FilterSettings
	user      types.FilterSettings
	score     int
	success   bool
	revealed  bool
	threshold int
	rounds    rounds
}

// NewEQMatch creates an EQ trainer playing through out and starts round 1.
func NewEQMatch(out audio.Output, loader engine.Loader, opts ...Option) *EQMatch {
	o := buildOptions(ModeEQ, opts)
	t := &EQMatch{
		opts:      o,
		user:      types.DefaultFilter(),
		threshold: o.successOr(score.EQSuccessScore),
	}
	t.target = t.drawLocked()
	t.eng = engine.New(out, loader, []engine.Chain[types.FilterSettings]{
		{Name: ChainTarget, Params: t.target, Build: dsp.NewBiquadNode},
		{Name: ChainUser, Params: t.user, Build: dsp.NewBiquadNode},
		{Name: ChainBypass, Params: t.user, Build: dsp.NewBypassNode[types.FilterSettings]},
	}, o.engineOptions(ModeEQ)...)

	t.mu.Lock()
	t.beginLocked(t.target)
	t.mu.Unlock()
	return t
}

// Mode implements [Trainer].
func (t *EQMatch) Mode() Mode { return ModeEQ }

// NewRound draws a fresh target and resets the listener to the neutral stage.
func (t *EQMatch) NewRound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(t.drawLocked())
}

// drawLocked draws a target the neutral stage does not already match. After
// maxDraws misses the last draw is kept.
func (t *EQMatch) drawLocked() types.FilterSettings {
	f := t.opts.gen.EQ()
	for i := 1; i < maxDraws && score.EQ(f, types.DefaultFilter()) >= t.threshold; i++ {
		f = t.opts.gen.EQ()
	}
	return f
}

// SetTarget starts a new round with an explicit target. The target is used
// as given; success is evaluated from the first listener update on.
func (t *EQMatch) SetTarget(f types.FilterSettings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(f)
}

func (t *EQMatch) beginLocked(target types.FilterSettings) {
	if t.rounds.next() {
		t.opts.metrics.RecordRound(context.Background(), string(ModeEQ), OutcomeSkipped)
	}
	t.target = target.Clamp()
	t.user = types.DefaultFilter()
	t.success = false
	t.revealed = false
	retune(t.eng, ChainTarget, t.target)
	retune(t.eng, ChainUser, t.user)
	t.score = score.EQ(t.target, t.user)
	t.opts.logger.Debug("round started", "round", t.rounds.stats.Round)
}

// SetUser replaces the listener's stage, retunes the live user chain and
// rescores. The returned snapshot reflects the new parameters.
func (t *EQMatch) SetUser(f types.FilterSettings) EQSnapshot {
	return t.update(func(types.FilterSettings) types.FilterSettings { return f })
}

// update applies fn to the listener's stage under the lock.
func (t *EQMatch) update(fn func(types.FilterSettings) types.FilterSettings) EQSnapshot {
	t.mu.Lock()
	f := fn(t.user).Clamp()
	t.user = f
	retune(t.eng, ChainUser, f)
	t.score = score.EQ(t.target, f)

	won := false
	if !t.rounds.finished && t.score >= t.threshold {
		t.success, t.revealed, won = true, true, true
		t.rounds.finish(true)
		t.opts.metrics.RecordRound(context.Background(), string(ModeEQ), OutcomeSolved)
		t.opts.metrics.RecordScore(context.Background(), string(ModeEQ), t.score)
		t.opts.logger.Info("round solved", "round", t.rounds.stats.Round, "score", t.score, "target", t.target)
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if won {
		t.opts.fire(snap.Score)
	}
	return snap
}

// SetType changes only the listener's filter type.
func (t *EQMatch) SetType(ft types.FilterType) EQSnapshot {
	return t.update(func(f types.FilterSettings) types.FilterSettings { return f.WithType(ft) })
}

// SetFrequency changes only the listener's frequency.
func (t *EQMatch) SetFrequency(hz float64) EQSnapshot {
	return t.update(func(f types.FilterSettings) types.FilterSettings { return f.WithFrequency(hz) })
}

// SetGain changes only the listener's gain.
func (t *EQMatch) SetGain(db float64) EQSnapshot {
	return t.update(func(f types.FilterSettings) types.FilterSettings { return f.WithGain(db) })
}

// SetQ changes only the listener's resonance.
func (t *EQMatch) SetQ(q float64) EQSnapshot {
	return t.update(func(f types.FilterSettings) types.FilterSettings { return f.WithQ(q) })
}

// User returns the listener's current stage.
func (t *EQMatch) User() types.FilterSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.user
}

// Reveal ends the round without a win. A round that is already over is left
// as is.
func (t *EQMatch) Reveal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rounds.finished {
		return
	}
	t.revealed = true
	t.rounds.finish(false)
	t.opts.metrics.RecordRound(context.Background(), string(ModeEQ), OutcomeRevealed)
	t.opts.metrics.RecordScore(context.Background(), string(ModeEQ), t.score)
	t.opts.logger.Info("round revealed", "round", t.rounds.stats.Round, "score", t.score, "target", t.target)
}

// SetSuccessScore changes the winning score from the next update on.
func (t *EQMatch) SetSuccessScore(s int) {
	if s <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = s
}

// Snapshot returns the current round state.
func (t *EQMatch) Snapshot() EQSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Stats implements [Trainer].
func (t *EQMatch) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rounds.stats
}

func (t *EQMatch) snapshotLocked() EQSnapshot {
	s := EQSnapshot{
		Stats:     t.rounds.stats,
		User:      t.user,
		Score:     t.score,
		Success:   t.success,
		Revealed:  t.revealed,
		UserCurve: curve.EQCurve(t.user, CurvePoints),
	}
	if t.revealed {
		s.Target = t.target
		s.TargetCurve = curve.EQCurve(t.target, CurvePoints)
	}
	return s
}
