// Package challenge produces hidden target parameter sets for each trainer
// mode, plus the multiple-choice distractors used by the gain-delta trainer.
//
// A [Generator] wraps a math/rand/v2 source. Seed it with [NewSeeded] for
// reproducible rounds in tests; [New] seeds from the runtime's entropy.
// A Generator is safe for concurrent use, so one can be shared by successive
// trainers; each draw is individually serialised.
package challenge

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/MrWong99/earmatch/pkg/types"
)

// Target distributions.
const (
	EQMinQ    = 0.4
	EQMaxQ    = 5.0
	EQMaxGain = 9.0

	SpotMinGain = 4.0
	SpotMaxGain = 10.0
	SpotMinQ    = 0.7
	SpotMaxQ    = 2.5

	CompMinThreshold = -48.0
	CompMaxThreshold = -20.0
	CompMinRatio     = 1.5
	CompMaxRatio     = 8.0
	CompMinAttackMs  = 8.0
	CompMaxAttackMs  = 78.0
	CompMinReleaseMs = 80.0
	CompMaxReleaseMs = 730.0
	CompMinMakeup    = -3.0
	CompMaxMakeup    = 6.0
)

// Generator draws challenge targets.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator seeded from runtime entropy.
func New() *Generator {
	return &Generator{rng: rand.New(&lockedSource{src: rand.NewPCG(rand.Uint64(), rand.Uint64())})}
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed uint64) *Generator {
	return &Generator{rng: rand.New(&lockedSource{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)})}
}

// lockedSource serialises access to a PCG source.
type lockedSource struct {
	mu  sync.Mutex
	src *rand.PCG
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// EQ draws an EQ-match target: uniform filter type, log-uniform frequency
// over 20 Hz–20 kHz, Q in [0.4, 5] and, for peaking stages only, gain in
// [-9, 9] dB.
func (g *Generator) EQ() types.FilterSettings {
	t := types.FilterTypes[g.rng.IntN(len(types.FilterTypes))]
	f := types.FilterSettings{
		Type:      t,
		Frequency: g.logFrequency(),
		Q:         g.uniform(EQMinQ, EQMaxQ),
	}
	if t == types.Peaking {
		f.Gain = g.uniform(-EQMaxGain, EQMaxGain)
	}
	return f.Clamp()
}

// FrequencySpot draws a "find the boost" target: always a peaking boost with
// log-uniform frequency, gain in [4, 10] dB and Q in [0.7, 2.5].
func (g *Generator) FrequencySpot() types.FilterSettings {
	return types.FilterSettings{
		Type:      types.Peaking,
		Frequency: g.logFrequency(),
		Gain:      g.uniform(SpotMinGain, SpotMaxGain),
		Q:         g.uniform(SpotMinQ, SpotMaxQ),
	}.Clamp()
}

// Compression draws a compression-match target.
func (g *Generator) Compression() types.CompressionSettings {
	return types.CompressionSettings{
		Threshold: g.uniform(CompMinThreshold, CompMaxThreshold),
		Ratio:     g.uniform(CompMinRatio, CompMaxRatio),
		Attack:    g.uniform(CompMinAttackMs, CompMaxAttackMs) / 1000,
		Release:   g.uniform(CompMinReleaseMs, CompMaxReleaseMs) / 1000,
		Makeup:    g.uniform(CompMinMakeup, CompMaxMakeup),
	}.Clamp()
}

// GainDelta draws a signed delta: magnitude uniform in [0.5, 10] dB rounded
// to 0.1 dB, sign uniform.
func (g *Generator) GainDelta() types.GainDelta {
	mag := math.Round(g.uniform(types.MinGainDelta, types.MaxGainDelta)*10) / 10
	if g.rng.IntN(2) == 0 {
		mag = -mag
	}
	return types.ClampGainDelta(mag)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) logFrequency() float64 {
	lo, hi := math.Log2(types.MinFrequency), math.Log2(types.MaxFrequency)
	return math.Exp2(g.uniform(lo, hi))
}
