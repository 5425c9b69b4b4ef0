// Package score turns two parameter sets into a 0–100 match percentage.
//
// Scores are pure: the same inputs always give the same integer, whatever the
// playback state. They are used both for continuous live feedback and as the
// round-completion trigger (see [EQSuccess] and [CompressionSuccess]).
package score

import (
	"math"

	"github.com/MrWong99/earmatch/pkg/curve"
	"github.com/MrWong99/earmatch/pkg/types"
)

// Penalty weights.
const (
	EQTypeMismatch   = 25.0
	EQOctaveWeight   = 35.0
	EQQWeight        = 6.0
	EQGainWeight     = 1.8
	CompThreshWeight = 1.0
	CompRatioWeight  = 42.0
	CompAttackWeight = 18.0
	CompRelWeight    = 12.0
	CompMakeupWeight = 1.2
	CompDriftWeight  = 1.1
)

// Success thresholds.
const (
	EQSuccessScore          = 90
	CompressionSuccessScore = 95
)

// Max is a perfect match.
const Max = 100

// EQPenalty returns the unrounded penalty between target and user.
func EQPenalty(target, user types.FilterSettings) float64 {
	var p float64
	if target.Type != user.Type {
		p += EQTypeMismatch
	}
	p += EQOctaveWeight * Octaves(target.Frequency, user.Frequency)
	p += EQQWeight * math.Abs(target.Q-user.Q)
	if target.Type == types.Peaking {
		p += EQGainWeight * math.Abs(target.Gain-user.Gain)
	}
	return p
}

// EQ returns the match score between target and user EQ stages.
func EQ(target, user types.FilterSettings) int {
	return fromPenalty(EQPenalty(target, user))
}

// EQSuccess reports whether s clears the EQ success bar.
func EQSuccess(s int) bool { return s >= EQSuccessScore }

// CompressionPenalty returns the unrounded penalty between target and user.
// Ratio, attack and release are compared in natural-log space because they
// are perceived multiplicatively; the curve drift term catches compensating
// combinations that draw similar transfer curves.
func CompressionPenalty(target, user types.CompressionSettings) float64 {
	var p float64
	p += CompThreshWeight * math.Abs(target.Threshold-user.Threshold)
	p += CompRatioWeight * logDistance(target.Ratio, user.Ratio)
	p += CompAttackWeight * logDistance(target.Attack, user.Attack)
	p += CompRelWeight * logDistance(target.Release, user.Release)
	p += CompMakeupWeight * math.Abs(target.Makeup-user.Makeup)
	p += CompDriftWeight * curve.Drift(target, user, curve.DriftPoints)
	return p
}

// Compression returns the match score between target and user compressors.
func Compression(target, user types.CompressionSettings) int {
	return fromPenalty(CompressionPenalty(target, user))
}

// CompressionSuccess reports whether s clears the compression success bar.
func CompressionSuccess(s int) bool { return s >= CompressionSuccessScore }

// Frequency scores a frequency-spot guess against the true centre using the
// EQ octave weighting alone.
func Frequency(target, guess float64) int {
	return fromPenalty(EQOctaveWeight * Octaves(target, guess))
}

// Octaves is the absolute distance between two frequencies in octaves.
// Non-positive inputs are treated as infinitely far apart.
func Octaves(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return math.Inf(1)
	}
	return math.Abs(math.Log2(a / b))
}

func logDistance(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return math.Inf(1)
	}
	return math.Abs(math.Log(a / b))
}

// fromPenalty floors 100-p at zero and rounds to the nearest integer.
func fromPenalty(p float64) int {
	s := Max - p
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return int(math.Round(s))
}
