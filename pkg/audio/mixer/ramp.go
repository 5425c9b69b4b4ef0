package mixer

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// DefaultTimeConstant is the crossfade time constant used when none is
// configured.
const DefaultTimeConstant = 15 * time.Millisecond

// settleEpsilon is how close a ramp must get before it snaps to its target.
const settleEpsilon = 1e-6

// Ramp is a per-frame exponential approach towards a target gain, the
// discrete form of target + (v0 - target)·exp(-t/τ).
type Ramp struct {
	value  float64
	target float64
	coeff  float64 // per-frame decay; 0 jumps immediately
}

// NewRamp returns a ramp resting at v with time constant tau at rate.
func NewRamp(v float64, tau time.Duration, rate beep.SampleRate) Ramp {
	r := Ramp{value: v, target: v}
	if frames := tau.Seconds() * float64(rate); frames > 0 {
		r.coeff = math.Exp(-1 / frames)
	}
	return r
}

// Value is the current gain.
func (r *Ramp) Value() float64 { return r.value }

// Target is the gain the ramp is approaching.
func (r *Ramp) Target() float64 { return r.target }

// Settled reports whether the ramp has reached its target.
func (r *Ramp) Settled() bool { return r.value == r.target }

// SetTarget starts an approach from the current value towards t.
func (r *Ramp) SetTarget(t float64) { r.target = t }

// Next advances the ramp one frame and returns the gain for that frame.
func (r *Ramp) Next() float64 {
	if r.value == r.target {
		return r.value
	}
	r.value = r.target + (r.value-r.target)*r.coeff
	if math.Abs(r.value-r.target) < settleEpsilon {
		r.value = r.target
	}
	return r.value
}
