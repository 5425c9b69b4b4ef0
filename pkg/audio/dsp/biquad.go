// Package dsp provides the live processing nodes that sit at the head of each
// engine chain: a parametric biquad, a feed-forward compressor, a static gain
// offset and a pass-through.
//
// Every node implements [audio.Node] for its parameter type. Retuning a node
// replaces its coefficients but keeps its signal memory, so parameter changes
// during playback never reset the filter or the envelope follower.
package dsp

import (
	"math"

	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/types"
)

var _ audio.Node[types.FilterSettings] = (*Biquad)(nil)

// nyquistGuard keeps the corner frequency strictly below Nyquist so that the
// bilinear transform stays stable at low sample rates.
const nyquistGuard = 0.49

// biquadState is the direct-form-I memory of one channel.
type biquadState struct {
	x1, x2, y1, y2 float64
}

// Biquad is a stereo RBJ-cookbook filter covering the peaking, highpass and
// lowpass shapes of [types.FilterSettings].
type Biquad struct {
	rate     float64
	settings types.FilterSettings

	// Coefficients normalised by a0.
	b0, b1, b2, a1, a2 float64

	state [2]biquadState
}

// NewBiquad returns a filter for the given sample rate tuned to f.
func NewBiquad(rate float64, f types.FilterSettings) *Biquad {
	b := &Biquad{rate: rate}
	b.Set(f)
	return b
}

// NewBiquadNode is a [audio.NodeFactory] for [types.FilterSettings] chains.
func NewBiquadNode(rate float64, f types.FilterSettings) audio.Node[types.FilterSettings] {
	return NewBiquad(rate, f)
}

// Settings returns the clamped settings the filter is currently tuned to.
func (b *Biquad) Settings() types.FilterSettings { return b.settings }

// Set retunes the filter. Delay-line state is preserved.
func (b *Biquad) Set(f types.FilterSettings) {
	f = f.Clamp()
	b.settings = f

	freq := math.Min(f.Frequency, nyquistGuard*b.rate)
	w0 := 2 * math.Pi * freq / b.rate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * f.Q)

	var b0, b1, b2, a0, a1, a2 float64
	switch f.Type {
	case types.Highpass:
		b0 = (1 + cosW) / 2
		b1 = -(1 + cosW)
		b2 = (1 + cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	case types.Lowpass:
		b0 = (1 - cosW) / 2
		b1 = 1 - cosW
		b2 = (1 - cosW) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW
		a2 = 1 - alpha
	default:
		a := math.Pow(10, f.Gain/40)
		b0 = 1 + alpha*a
		b1 = -2 * cosW
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosW
		a2 = 1 - alpha/a
	}

	b.b0, b.b1, b.b2 = b0/a0, b1/a0, b2/a0
	b.a1, b.a2 = a1/a0, a2/a0
}

// Process filters frames in place.
func (b *Biquad) Process(frames [][2]float64) {
	for i := range frames {
		for ch := range 2 {
			s := &b.state[ch]
			x := frames[i][ch]
			y := b.b0*x + b.b1*s.x1 + b.b2*s.x2 - b.a1*s.y1 - b.a2*s.y2
			s.x2, s.x1 = s.x1, x
			s.y2, s.y1 = s.y1, y
			frames[i][ch] = y
		}
	}
}

// State returns a copy of the per-channel delay lines as {x1, x2, y1, y2}.
func (b *Biquad) State() [2][4]float64 {
	var out [2][4]float64
	for ch, s := range b.state {
		out[ch] = [4]float64{s.x1, s.x2, s.y1, s.y2}
	}
	return out
}

// MagnitudeDB evaluates the filter's magnitude response at hz.
func (b *Biquad) MagnitudeDB(hz float64) float64 {
	w := 2 * math.Pi * hz / b.rate
	c1, s1 := math.Cos(w), math.Sin(w)
	c2, s2 := math.Cos(2*w), math.Sin(2*w)

	numRe := b.b0 + b.b1*c1 + b.b2*c2
	numIm := -(b.b1*s1 + b.b2*s2)
	denRe := 1 + b.a1*c1 + b.a2*c2
	denIm := -(b.a1*s1 + b.a2*s2)

	num := math.Hypot(numRe, numIm)
	den := math.Hypot(denRe, denIm)
	return audio.LinearToDB(num / den)
}
