// Package types defines the parameter models shared across all earmatch
// packages.
//
// These types form the lingua franca between the challenge generator, the
// curve model, the scoring functions, the live audio nodes and the trainers.
// All of them are plain values: holders replace them wholesale, and every
// setter returns a clamped copy instead of mutating in place. There is no
// validation error anywhere in this package; out-of-range input is clamped to
// the documented interval so that every numeric domain is total.
package types

import (
	"fmt"
	"math"
)

// ─── Ranges ──────────────────────────────────────────────────────────────────

// Valid parameter intervals. Every setter clamps into these.
const (
	MinFrequency = 20.0
	MaxFrequency = 20000.0

	MinFilterGain = -24.0
	MaxFilterGain = 24.0

	MinQ = 0.1
	MaxQ = 18.0

	MinThreshold = -100.0
	MaxThreshold = 0.0

	MinRatio = 1.0
	MaxRatio = 20.0

	// Attack and release are stored in seconds.
	MinAttack  = 0.001
	MaxAttack  = 1.0
	MinRelease = 0.01
	MaxRelease = 1.0

	MinMakeup = -24.0
	MaxMakeup = 24.0

	// MinGainDelta is the dead zone: no delta has a magnitude below it.
	MinGainDelta = 0.5
	MaxGainDelta = 10.0
)

// ─── FilterType ──────────────────────────────────────────────────────────────

// FilterType selects the shape of a parametric EQ stage.
type FilterType string

const (
	Peaking  FilterType = "peaking"
	Highpass FilterType = "highpass"
	Lowpass  FilterType = "lowpass"
)

// FilterTypes lists every filter type in a stable order. The challenge
// generator picks uniformly from this slice.
var FilterTypes = []FilterType{Peaking, Highpass, Lowpass}

// IsValid reports whether t is a recognised filter type.
func (t FilterType) IsValid() bool {
	switch t {
	case Peaking, Highpass, Lowpass:
		return true
	}
	return false
}

// ─── FilterSettings ──────────────────────────────────────────────────────────

// FilterSettings is one parametric EQ stage.
type FilterSettings struct {
	// Type selects the filter shape.
	Type FilterType `yaml:"type" json:"type"`

	// Frequency is the centre (peaking) or corner (pass filters) in Hz.
	Frequency float64 `yaml:"frequency" json:"frequency"`

	// Gain in dB. Only meaningful for peaking stages.
	Gain float64 `yaml:"gain" json:"gain"`

	// Q is the dimensionless resonance.
	Q float64 `yaml:"q" json:"q"`
}

// DefaultFilter is the neutral starting point handed to listeners at the
// start of an EQ round: a flat 1 kHz peaking stage.
func DefaultFilter() FilterSettings {
	return FilterSettings{Type: Peaking, Frequency: 1000, Gain: 0, Q: 1}
}

// Clamp returns a copy of f with every field inside its valid interval.
// An unrecognised type becomes [Peaking].
func (f FilterSettings) Clamp() FilterSettings {
	if !f.Type.IsValid() {
		f.Type = Peaking
	}
	f.Frequency = Clamp(f.Frequency, MinFrequency, MaxFrequency)
	f.Gain = Clamp(f.Gain, MinFilterGain, MaxFilterGain)
	f.Q = Clamp(f.Q, MinQ, MaxQ)
	return f
}

// WithType returns a clamped copy of f using filter type t.
func (f FilterSettings) WithType(t FilterType) FilterSettings {
	f.Type = t
	return f.Clamp()
}

// WithFrequency returns a clamped copy of f using frequency hz.
func (f FilterSettings) WithFrequency(hz float64) FilterSettings {
	f.Frequency = hz
	return f.Clamp()
}

// WithGain returns a clamped copy of f using gain db.
func (f FilterSettings) WithGain(db float64) FilterSettings {
	f.Gain = db
	return f.Clamp()
}

// WithQ returns a clamped copy of f using resonance q.
func (f FilterSettings) WithQ(q float64) FilterSettings {
	f.Q = q
	return f.Clamp()
}

// String renders f for logs and the terminal reveal.
func (f FilterSettings) String() string {
	if f.Type == Peaking {
		return fmt.Sprintf("%s %.0f Hz %+.1f dB Q %.2f", f.Type, f.Frequency, f.Gain, f.Q)
	}
	return fmt.Sprintf("%s %.0f Hz Q %.2f", f.Type, f.Frequency, f.Q)
}

// ─── CompressionSettings ─────────────────────────────────────────────────────

// CompressionSettings is one downward compressor stage plus post gain.
type CompressionSettings struct {
	// Threshold in dBFS above which gain reduction starts.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Ratio of input excess to output excess above Threshold.
	Ratio float64 `yaml:"ratio" json:"ratio"`

	// Attack time in seconds.
	Attack float64 `yaml:"attack" json:"attack"`

	// Release time in seconds.
	Release float64 `yaml:"release" json:"release"`

	// Makeup gain in dB applied after compression.
	Makeup float64 `yaml:"makeup" json:"makeup"`
}

// DefaultCompression is the neutral starting point for compression rounds.
func DefaultCompression() CompressionSettings {
	return CompressionSettings{Threshold: -24, Ratio: 2, Attack: 0.02, Release: 0.25, Makeup: 0}
}

// Clamp returns a copy of c with every field inside its valid interval.
func (c CompressionSettings) Clamp() CompressionSettings {
	c.Threshold = Clamp(c.Threshold, MinThreshold, MaxThreshold)
	c.Ratio = Clamp(c.Ratio, MinRatio, MaxRatio)
	c.Attack = Clamp(c.Attack, MinAttack, MaxAttack)
	c.Release = Clamp(c.Release, MinRelease, MaxRelease)
	c.Makeup = Clamp(c.Makeup, MinMakeup, MaxMakeup)
	return c
}

// WithThreshold returns a clamped copy of c using threshold db.
func (c CompressionSettings) WithThreshold(db float64) CompressionSettings {
	c.Threshold = db
	return c.Clamp()
}

// WithRatio returns a clamped copy of c using ratio r.
func (c CompressionSettings) WithRatio(r float64) CompressionSettings {
	c.Ratio = r
	return c.Clamp()
}

// WithAttackMs returns a clamped copy of c with the attack given in
// milliseconds.
func (c CompressionSettings) WithAttackMs(ms float64) CompressionSettings {
	c.Attack = ms / 1000
	return c.Clamp()
}

// WithReleaseMs returns a clamped copy of c with the release given in
// milliseconds.
func (c CompressionSettings) WithReleaseMs(ms float64) CompressionSettings {
	c.Release = ms / 1000
	return c.Clamp()
}

// WithMakeup returns a clamped copy of c using makeup gain db.
func (c CompressionSettings) WithMakeup(db float64) CompressionSettings {
	c.Makeup = db
	return c.Clamp()
}

// String renders c for logs and the terminal reveal.
func (c CompressionSettings) String() string {
	return fmt.Sprintf("thr %.1f dB ratio %.2f:1 atk %.0f ms rel %.0f ms makeup %+.1f dB",
		c.Threshold, c.Ratio, c.Attack*1000, c.Release*1000, c.Makeup)
}

// ─── GainDelta ───────────────────────────────────────────────────────────────

// GainDelta is a signed level offset in dB applied to one path relative to an
// unmodified reference. Its magnitude never falls inside the dead zone below
// [MinGainDelta].
type GainDelta float64

// ClampGainDelta maps db into [-10,-0.5]∪[0.5,10]. Values inside the dead
// zone are pushed out to ±0.5 keeping their sign; zero and NaN become +0.5.
func ClampGainDelta(db float64) GainDelta {
	if math.IsNaN(db) || db == 0 {
		return MinGainDelta
	}
	sign := 1.0
	if db < 0 {
		sign = -1
	}
	return GainDelta(sign * Clamp(math.Abs(db), MinGainDelta, MaxGainDelta))
}

// DB returns the delta as a plain float.
func (d GainDelta) DB() float64 { return float64(d) }

// String renders d with an explicit sign.
func (d GainDelta) String() string { return fmt.Sprintf("%+.1f dB", float64(d)) }

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
