package challenge

import (
	"math"
	"slices"

	"github.com/MrWong99/earmatch/pkg/types"
)

// Multiple-choice defaults for the gain-delta trainer.
const (
	OptionCount   = 4
	MinSeparation = 1.0

	// DefaultMaxAttempts bounds the rejection sampler before the
	// deterministic grid fill takes over.
	DefaultMaxAttempts = 1000

	// gridStep is the spacing of the fallback grid in dB.
	gridStep = 0.5
)

// GainChallenge is one gain-delta round: the hidden delta and the shuffled
// answer options that contain it exactly once.
type GainChallenge struct {
	Delta   types.GainDelta
	Options []types.GainDelta
}

// Answer returns the index of Delta inside Options.
func (c GainChallenge) Answer() int {
	return slices.Index(c.Options, c.Delta)
}

// OptionsConfig tunes distractor generation. Zero values take the package
// defaults.
type OptionsConfig struct {
	Count         int
	MinSeparation float64
	MaxAttempts   int
}

func (c OptionsConfig) withDefaults() OptionsConfig {
	if c.Count <= 0 {
		c.Count = OptionCount
	}
	if c.MinSeparation <= 0 {
		c.MinSeparation = MinSeparation
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// GainDeltaChallenge draws a delta and its distractors with the default
// configuration.
func (g *Generator) GainDeltaChallenge() GainChallenge {
	return g.GainDeltaChallengeWith(OptionsConfig{})
}

// GainDeltaChallengeWith draws a delta and cfg.Count-1 distractors.
//
// Candidates come from the same distribution as the hidden delta and are
// accepted only when they sit at least cfg.MinSeparation dB from every value
// already accepted, the true delta included. Once cfg.MaxAttempts candidates
// have been drawn, the remaining slots are filled from a fixed 0.5 dB grid
// over the valid domain, nearest to the true delta first, so the call always
// terminates. If even the grid cannot satisfy the separation the result
// holds fewer options. Options are shuffled before returning.
func (g *Generator) GainDeltaChallengeWith(cfg OptionsConfig) GainChallenge {
	cfg = cfg.withDefaults()

	delta := g.GainDelta()
	opts := make([]types.GainDelta, 0, cfg.Count)
	opts = append(opts, delta)

	for attempt := 0; len(opts) < cfg.Count && attempt < cfg.MaxAttempts; attempt++ {
		if c := g.GainDelta(); separated(opts, c, cfg.MinSeparation) {
			opts = append(opts, c)
		}
	}

	if len(opts) < cfg.Count {
		opts = fillFromGrid(opts, delta, cfg)
	}

	g.rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	return GainChallenge{Delta: delta, Options: opts}
}

// separated reports whether c is at least sep dB from every accepted value.
func separated(accepted []types.GainDelta, c types.GainDelta, sep float64) bool {
	for _, a := range accepted {
		if math.Abs(float64(a-c)) < sep {
			return false
		}
	}
	return true
}

// fillFromGrid tops opts up from the deterministic fallback grid.
func fillFromGrid(opts []types.GainDelta, delta types.GainDelta, cfg OptionsConfig) []types.GainDelta {
	for _, c := range grid(delta) {
		if len(opts) >= cfg.Count {
			break
		}
		if separated(opts, c, cfg.MinSeparation) {
			opts = append(opts, c)
		}
	}
	return opts
}

// grid lists ±0.5…±10 dB in 0.5 dB steps ordered by distance from delta,
// ties broken towards the lower value.
func grid(delta types.GainDelta) []types.GainDelta {
	n := int(math.Round((types.MaxGainDelta-types.MinGainDelta)/gridStep)) + 1
	out := make([]types.GainDelta, 0, 2*n)
	for i := range n {
		v := types.MinGainDelta + float64(i)*gridStep
		out = append(out, types.GainDelta(v), types.GainDelta(-v))
	}
	slices.SortStableFunc(out, func(a, b types.GainDelta) int {
		da, db := math.Abs(float64(a-delta)), math.Abs(float64(b-delta))
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
	return out
}
