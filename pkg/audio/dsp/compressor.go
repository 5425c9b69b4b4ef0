package dsp

import (
	"math"

	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/curve"
	"github.com/MrWong99/earmatch/pkg/types"
)

var _ audio.Node[types.CompressionSettings] = (*Compressor)(nil)

// Compressor is a stereo-linked feed-forward downward compressor.
//
// A peak envelope follower tracks the louder of the two channels; the gain
// computer is the hard-knee transfer curve from [curve.CompressionLevel], so
// the static behaviour heard matches the curve drawn.
type Compressor struct {
	rate     float64
	settings types.CompressionSettings

	attackCoeff  float64
	releaseCoeff float64

	// env is the smoothed peak in linear amplitude.
	env float64
}

// NewCompressor returns a compressor for the given sample rate.
func NewCompressor(rate float64, c types.CompressionSettings) *Compressor {
	k := &Compressor{rate: rate}
	k.Set(c)
	return k
}

// NewCompressorNode is a [audio.NodeFactory] for [types.CompressionSettings]
// chains.
func NewCompressorNode(rate float64, c types.CompressionSettings) audio.Node[types.CompressionSettings] {
	return NewCompressor(rate, c)
}

// Settings returns the clamped settings currently in effect.
func (k *Compressor) Settings() types.CompressionSettings { return k.settings }

// Envelope returns the follower's current level in dBFS.
func (k *Compressor) Envelope() float64 { return audio.LinearToDB(k.env) }

// Set retunes the compressor. The envelope is preserved.
func (k *Compressor) Set(c types.CompressionSettings) {
	c = c.Clamp()
	k.settings = c
	// Half-life coefficients: the follower covers half the distance to a new
	// level in the configured time.
	k.attackCoeff = 1 - math.Exp(-math.Ln2/(c.Attack*k.rate))
	k.releaseCoeff = math.Exp(-math.Ln2 / (c.Release * k.rate))
}

// Process compresses frames in place.
func (k *Compressor) Process(frames [][2]float64) {
	for i := range frames {
		peak := math.Max(math.Abs(frames[i][0]), math.Abs(frames[i][1]))
		if peak > k.env {
			k.env += (peak - k.env) * k.attackCoeff
		} else {
			k.env = peak + (k.env-peak)*k.releaseCoeff
		}

		g := k.gain()
		frames[i][0] *= g
		frames[i][1] *= g
	}
}

// gain is the linear gain for the current envelope, makeup included.
func (k *Compressor) gain() float64 {
	in := audio.LinearToDB(k.env)
	return audio.DBToLinear(curve.CompressionLevel(k.settings, in) - in)
}

// StaticGainDB returns the steady-state gain for a constant input level.
func (k *Compressor) StaticGainDB(in float64) float64 {
	return curve.CompressionLevel(k.settings, in) - in
}
