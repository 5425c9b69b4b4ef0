package dsp

import (
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/types"
)

var (
	_ audio.Node[types.GainDelta]           = (*Offset)(nil)
	_ audio.Node[types.FilterSettings]      = Bypass[types.FilterSettings]{}
	_ audio.Node[types.CompressionSettings] = Bypass[types.CompressionSettings]{}
)

// inPlace is a streamer that leaves the buffer it is handed untouched, letting
// beep effects run over frames that are already filled.
var inPlace = beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
	return len(samples), true
})

// Offset applies a static level change in dB.
type Offset struct {
	delta types.GainDelta
	gain  effects.Gain
}

// NewOffset returns an offset stage applying d.
func NewOffset(d types.GainDelta) *Offset {
	o := &Offset{gain: effects.Gain{Streamer: inPlace}}
	o.Set(d)
	return o
}

// NewOffsetNode is a [audio.NodeFactory] for gain-delta chains.
func NewOffsetNode(_ float64, d types.GainDelta) audio.Node[types.GainDelta] {
	return NewOffset(d)
}

// Delta returns the offset currently applied.
func (o *Offset) Delta() types.GainDelta { return o.delta }

// Set replaces the applied offset, clamped into the gain-delta domain.
func (o *Offset) Set(d types.GainDelta) {
	d = types.ClampGainDelta(float64(d))
	o.delta = d
	// effects.Gain scales by 1+Gain.
	o.gain.Gain = audio.DBToLinear(float64(d)) - 1
}

// Process scales frames in place.
func (o *Offset) Process(frames [][2]float64) {
	o.gain.Stream(frames)
}

// Bypass passes audio through untouched whatever its parameters hold. It is the
// node of reference chains, which still carry parameters so that every chain
// of an engine shares one type.
type Bypass[P any] struct{}

// NewBypassNode is a [audio.NodeFactory] producing a [Bypass].
func NewBypassNode[P any](float64, P) audio.Node[P] {
	return Bypass[P]{}
}

// Process does nothing.
func (Bypass[P]) Process([][2]float64) {}

// Set does nothing.
func (Bypass[P]) Set(P) {}
