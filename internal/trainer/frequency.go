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

// DefaultToleranceOctaves is how far a frequency guess may miss and still
// count as correct.
const DefaultToleranceOctaves = 1.0 / 3

var _ Trainer = (*FrequencySpot)(nil)

// FrequencyResult is the outcome of one guess.
type FrequencyResult struct {
	Guess   float64
	Target  float64
	Octaves float64
	Score   int
	Correct bool
}

// FrequencySnapshot is a consistent view of a frequency-spot round.
type FrequencySnapshot struct {
	Stats

	// Guessed is true once Guess was called this round; Result is zero
	// before that.
	Guessed bool
	Result  FrequencyResult

	// Revealed is true once the round was guessed or revealed. Target and
	// TargetCurve are zero until then.
	Revealed    bool
	Target      types.FilterSettings
	TargetCurve []curve.Point
}

// FrequencySpot is the find-the-boost trainer. Its chains are "boosted",
// carrying the hidden peaking stage, and "bypass".
type FrequencySpot struct {
	transport[types.FilterSettings]
	opts options

	mu        sync.Mutex
	target    types.FilterSettings
	result    FrequencyResult
	guessed   bool
	revealed  bool
	tolerance float64
	rounds    rounds
}

// NewFrequencySpot creates a frequency-spot trainer and starts round 1.
func NewFrequencySpot(out audio.Output, loader engine.Loader, opts ...Option) *FrequencySpot {
	o := buildOptions(ModeFrequency, opts)
	t := &FrequencySpot{
		opts:      o,
		target:    o.gen.FrequencySpot(),
		tolerance: o.tolerance,
	}
	t.eng = engine.New(out, loader, []engine.Chain[types.FilterSettings]{
		{Name: ChainBoosted, Params: t.target, Build: dsp.NewBiquadNode},
		{Name: ChainBypass, Params: t.target, Build: dsp.NewBypassNode[types.FilterSettings]},
	}, o.engineOptions(ModeFrequency)...)

	t.mu.Lock()
	t.beginLocked(t.target)
	t.mu.Unlock()
	return t
}

// Mode implements [Trainer].
func (t *FrequencySpot) Mode() Mode { return ModeFrequency }

// NewRound draws a fresh boost.
func (t *FrequencySpot) NewRound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(t.opts.gen.FrequencySpot())
}

// SetTarget starts a new round with an explicit boost.
func (t *FrequencySpot) SetTarget(f types.FilterSettings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(f)
}

func (t *FrequencySpot) beginLocked(target types.FilterSettings) {
	if t.rounds.next() {
		t.opts.metrics.RecordRound(context.Background(), string(ModeFrequency), OutcomeSkipped)
	}
	t.target = target.WithType(types.Peaking)
	t.result = FrequencyResult{}
	t.guessed = false
	t.revealed = false
	retune(t.eng, ChainBoosted, t.target)
	t.opts.logger.Debug("round started", "round", t.rounds.stats.Round)
}

// Guess scores hz against the hidden boost and ends the round. It returns
// [ErrRoundOver] if the round was already guessed or revealed.
func (t *FrequencySpot) Guess(hz float64) (FrequencyResult, error) {
	t.mu.Lock()
	if t.rounds.finished {
		t.mu.Unlock()
		return FrequencyResult{}, ErrRoundOver
	}

	hz = types.Clamp(hz, types.MinFrequency, types.MaxFrequency)
	oct := score.Octaves(t.target.Frequency, hz)
	r := FrequencyResult{
		Guess:   hz,
		Target:  t.target.Frequency,
		Octaves: oct,
		Score:   score.Frequency(t.target.Frequency, hz),
		Correct: oct <= t.tolerance,
	}
	t.result = r
	t.guessed = true
	t.revealed = true
	t.rounds.finish(r.Correct)

	outcome := OutcomeWrong
	if r.Correct {
		outcome = OutcomeCorrect
	}
	t.opts.metrics.RecordRound(context.Background(), string(ModeFrequency), outcome)
	t.opts.metrics.RecordScore(context.Background(), string(ModeFrequency), r.Score)
	t.opts.logger.Info("guess", "round", t.rounds.stats.Round, "guess_hz", hz, "target_hz", r.Target, "score", r.Score, "correct", r.Correct)
	t.mu.Unlock()

	if r.Correct {
		t.opts.fire(r.Score)
	}
	return r, nil
}

// Reveal ends the round without a guess.
func (t *FrequencySpot) Reveal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rounds.finished {
		return
	}
	t.revealed = true
	t.rounds.finish(false)
	t.opts.metrics.RecordRound(context.Background(), string(ModeFrequency), OutcomeRevealed)
	t.opts.logger.Info("round revealed", "round", t.rounds.stats.Round, "target", t.target)
}

// SetToleranceOctaves changes how close the next guess must be.
func (t *FrequencySpot) SetToleranceOctaves(oct float64) {
	if oct <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tolerance = oct
}

// Snapshot returns the current round state.
func (t *FrequencySpot) Snapshot() FrequencySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := FrequencySnapshot{
		Stats:    t.rounds.stats,
		Guessed:  t.guessed,
		Result:   t.result,
		Revealed: t.revealed,
	}
	if t.revealed {
		s.Target = t.target
		s.TargetCurve = curve.EQCurve(t.target, CurvePoints)
	}
	return s
}

// Stats implements [Trainer].
func (t *FrequencySpot) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rounds.stats
}
