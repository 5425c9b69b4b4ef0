package trainer

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/audio/dsp"
	"github.com/MrWong99/earmatch/pkg/challenge"
	"github.com/MrWong99/earmatch/pkg/types"
)

var _ Trainer = (*GainDelta)(nil)

// GainResult is the outcome of one answer.
type GainResult struct {
	Choice  int
	Chosen  types.GainDelta
	Delta   types.GainDelta
	Correct bool
}

// GainSnapshot is a consistent view of a gain-delta round.
type GainSnapshot struct {
	Stats
	Options []types.GainDelta

	// Answered is true once Answer was called this round; Result is zero
	// before that.
	Answered bool
	Result   GainResult

	// Revealed is true once the round was answered or revealed. Delta is
	// zero until then.
	Revealed bool
	Delta    types.GainDelta
}

// GainDelta is the multiple-choice level trainer. The "reference" chain plays
// the source untouched; "processed" applies the hidden offset.
type GainDelta struct {
	transport[types.GainDelta]
	opts options

	mu       sync.Mutex
	current  challenge.GainChallenge
	result   GainResult
	answered bool
	revealed bool
	rounds   rounds
}

// NewGainDelta creates a gain-delta trainer and starts round 1.
func NewGainDelta(out audio.Output, loader engine.Loader, opts ...Option) *GainDelta {
	o := buildOptions(ModeGain, opts)
	t := &GainDelta{
		opts:    o,
		current: o.gen.GainDeltaChallengeWith(o.gainOptions),
	}
	t.eng = engine.New(out, loader, []engine.Chain[types.GainDelta]{
		{Name: ChainReference, Params: t.current.Delta, Build: dsp.NewBypassNode[types.GainDelta]},
		{Name: ChainProcessed, Params: t.current.Delta, Build: dsp.NewOffsetNode},
	}, o.engineOptions(ModeGain)...)

	t.mu.Lock()
	t.beginLocked(t.current)
	t.mu.Unlock()
	return t
}

// Mode implements [Trainer].
func (t *GainDelta) Mode() Mode { return ModeGain }

// NewRound draws a fresh delta and options.
func (t *GainDelta) NewRound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(t.opts.gen.GainDeltaChallengeWith(t.opts.gainOptions))
}

// SetChallenge starts a new round with an explicit challenge. The delta and
// every option are clamped, options that collapse onto an earlier one are
// dropped, and the delta is added to the options if missing.
func (t *GainDelta) SetChallenge(c challenge.GainChallenge) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c.Delta = types.ClampGainDelta(float64(c.Delta))
	opts := make([]types.GainDelta, 0, len(c.Options)+1)
	for _, o := range c.Options {
		if o = types.ClampGainDelta(float64(o)); !slices.Contains(opts, o) {
			opts = append(opts, o)
		}
	}
	c.Options = opts
	if c.Answer() < 0 {
		c.Options = append(c.Options, c.Delta)
	}
	t.beginLocked(c)
}

func (t *GainDelta) beginLocked(c challenge.GainChallenge) {
	if t.rounds.next() {
		t.opts.metrics.RecordRound(context.Background(), string(ModeGain), OutcomeSkipped)
	}
	t.current = c
	t.result = GainResult{}
	t.answered = false
	t.revealed = false
	retune(t.eng, ChainProcessed, c.Delta)
	t.opts.logger.Debug("round started", "round", t.rounds.stats.Round, "options", len(c.Options))
}

// Answer picks option i and ends the round. It returns [ErrRoundOver] if the
// round is already over and an error if i is out of range.
func (t *GainDelta) Answer(i int) (GainResult, error) {
	t.mu.Lock()
	if t.rounds.finished {
		t.mu.Unlock()
		return GainResult{}, ErrRoundOver
	}
	if i < 0 || i >= len(t.current.Options) {
		n := len(t.current.Options)
		t.mu.Unlock()
		return GainResult{}, fmt.Errorf("trainer: option %d out of range [0,%d)", i, n)
	}

	r := GainResult{
		Choice:  i,
		Chosen:  t.current.Options[i],
		Delta:   t.current.Delta,
		Correct: i == t.current.Answer(),
	}
	t.result = r
	t.answered = true
	t.revealed = true
	t.rounds.finish(r.Correct)

	outcome := OutcomeWrong
	if r.Correct {
		outcome = OutcomeCorrect
	}
	t.opts.metrics.RecordRound(context.Background(), string(ModeGain), outcome)
	t.opts.logger.Info("answer", "round", t.rounds.stats.Round, "chosen", r.Chosen, "delta", r.Delta, "correct", r.Correct)
	t.mu.Unlock()

	if r.Correct {
		t.opts.fire(100)
	}
	return r, nil
}

// Reveal ends the round without an answer.
func (t *GainDelta) Reveal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rounds.finished {
		return
	}
	t.revealed = true
	t.rounds.finish(false)
	t.opts.metrics.RecordRound(context.Background(), string(ModeGain), OutcomeRevealed)
	t.opts.logger.Info("round revealed", "round", t.rounds.stats.Round, "delta", t.current.Delta)
}

// SetGainOptions changes distractor generation from the next round on.
func (t *GainDelta) SetGainOptions(cfg challenge.OptionsConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.gainOptions = cfg
}

// Snapshot returns the current round state.
func (t *GainDelta) Snapshot() GainSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := GainSnapshot{
		Stats:    t.rounds.stats,
		Options:  append([]types.GainDelta(nil), t.current.Options...),
		Answered: t.answered,
		Result:   t.result,
		Revealed: t.revealed,
	}
	if t.revealed {
		s.Delta = t.current.Delta
	}
	return s
}

// Stats implements [Trainer].
func (t *GainDelta) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rounds.stats
}
