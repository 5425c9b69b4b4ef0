// Package curve is the analytic response model shared by display and
// scoring.
//
// Every function here is a pure function of its parameters and the probe
// input. The same functions render the curves a listener sees and feed the
// compression score, so what is drawn is exactly what is scored. Nothing in
// this package looks at rendered audio.
package curve

import (
	"math"

	"github.com/MrWong99/earmatch/pkg/types"
)

// Display and sampling limits.
const (
	// DisplayMinDB and DisplayMaxDB bound the EQ curve for display.
	DisplayMinDB = -12.0
	DisplayMaxDB = 12.0

	// RollOffFloorDB is the saturation level of the pass-filter roll-off.
	RollOffFloorDB = -12.0

	// MinWidthOctaves is the narrowest Gaussian a peaking stage can draw.
	MinWidthOctaves = 0.15

	// CompressionMinDB and CompressionMaxDB span the compressor input axis.
	CompressionMinDB = -60.0
	CompressionMaxDB = 0.0

	// DriftPoints is the number of input levels the compression score
	// compares two transfer curves at.
	DriftPoints = 31
)

// Point is one vertex of a rendered polyline.
type Point struct {
	X float64 // probe input: Hz for EQ curves, dBFS for compression curves
	Y float64 // output: dB gain for EQ curves, dBFS for compression curves
}

// ─── EQ ──────────────────────────────────────────────────────────────────────

// PeakWidth returns the Gaussian width in octaves for resonance q.
func PeakWidth(q float64) float64 {
	if q <= 0 {
		return math.Inf(1)
	}
	return math.Max(MinWidthOctaves, 1/(1.8*q))
}

// RollOffSlope returns the logistic slope used by pass filters for
// resonance q. Steeper for higher q.
func RollOffSlope(q float64) float64 {
	return 1 + 3*q
}

// EQ returns the gain in dB that stage f applies at probe frequency hz.
//
// Peaking stages are a Gaussian in log2 space centred on f.Frequency with
// amplitude f.Gain, so the response at the centre equals the configured gain
// exactly. Pass filters are a logistic roll-off in log2(hz/corner) that
// saturates at [RollOffFloorDB] on the stop side and reaches 0 dB on the pass
// side. The result is not clamped; use [EQDisplay] for drawing.
func EQ(f types.FilterSettings, hz float64) float64 {
	if hz <= 0 || f.Frequency <= 0 {
		return 0
	}
	d := math.Log2(hz / f.Frequency)

	switch f.Type {
	case types.Highpass:
		return RollOffFloorDB / (1 + math.Exp(RollOffSlope(f.Q)*d))
	case types.Lowpass:
		return RollOffFloorDB / (1 + math.Exp(-RollOffSlope(f.Q)*d))
	default:
		w := PeakWidth(f.Q)
		return f.Gain * math.Exp(-(d*d)/(2*w*w))
	}
}

// EQDisplay is [EQ] clamped to the display window.
func EQDisplay(f types.FilterSettings, hz float64) float64 {
	return types.Clamp(EQ(f, hz), DisplayMinDB, DisplayMaxDB)
}

// EQCurve samples f at n log-spaced frequencies between 20 Hz and 20 kHz
// inclusive. Values are clamped for display.
func EQCurve(f types.FilterSettings, n int) []Point {
	freqs := LogSpace(types.MinFrequency, types.MaxFrequency, n)
	pts := make([]Point, len(freqs))
	for i, hz := range freqs {
		pts[i] = Point{X: hz, Y: EQDisplay(f, hz)}
	}
	return pts
}

// ─── Compression ─────────────────────────────────────────────────────────────

// CompressionLevel returns the static output level in dBFS of compressor c
// for an input level in dBFS. This is the standard hard-knee downward
// transfer curve; attack and release do not affect it.
func CompressionLevel(c types.CompressionSettings, in float64) float64 {
	if in <= c.Threshold {
		return in + c.Makeup
	}
	ratio := c.Ratio
	if ratio < 1 {
		ratio = 1
	}
	return c.Threshold + (in-c.Threshold)/ratio + c.Makeup
}

// CompressionCurve samples c at n evenly spaced input levels between
// [CompressionMinDB] and [CompressionMaxDB] inclusive.
func CompressionCurve(c types.CompressionSettings, n int) []Point {
	levels := LinSpace(CompressionMinDB, CompressionMaxDB, n)
	pts := make([]Point, len(levels))
	for i, in := range levels {
		pts[i] = Point{X: in, Y: CompressionLevel(c, in)}
	}
	return pts
}

// Drift is the mean absolute difference in dB between the transfer curves of
// a and b sampled at n evenly spaced input levels. n < 1 returns 0.
func Drift(a, b types.CompressionSettings, n int) float64 {
	if n < 1 {
		return 0
	}
	var sum float64
	for _, in := range LinSpace(CompressionMinDB, CompressionMaxDB, n) {
		sum += math.Abs(CompressionLevel(a, in) - CompressionLevel(b, in))
	}
	return sum / float64(n)
}

// ─── Sampling ────────────────────────────────────────────────────────────────

// LinSpace returns n evenly spaced values from lo to hi inclusive. n == 1
// returns lo; n < 1 returns nil.
func LinSpace(lo, hi float64, n int) []float64 {
	if n < 1 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}

// LogSpace returns n logarithmically spaced values from lo to hi inclusive.
// Both bounds must be positive.
func LogSpace(lo, hi float64, n int) []float64 {
	exps := LinSpace(math.Log2(lo), math.Log2(hi), n)
	for i, e := range exps {
		exps[i] = math.Exp2(e)
	}
	if n > 1 {
		exps[0], exps[n-1] = lo, hi
	}
	return exps
}
