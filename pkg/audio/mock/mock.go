// Package mock provides an in-memory implementation of [audio.Output] for use
// in unit tests.
//
// The mock has no clock of its own: tests drive attached streamers by calling
// [Output.Pull], which plays the role of the sound card's callback. It records
// every attachment so tests can assert how many graphs were built and which of
// them are still live.
//
// Typical usage:
//
//	out := mock.New(48000)
//	eng := engine.New(out, loader, chains)
//	...
//	mixed := out.Pull(480)
package mock

import (
	"sync"

	"github.com/gopxl/beep"

	"github.com/MrWong99/earmatch/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Output = (*Output)(nil)

// Output is a mock implementation of [audio.Output].
// Set the exported error fields before use; inspect the Call* fields after.
type Output struct {
	rate beep.SampleRate

	// mu is the output lock. Pull holds it while streaming, exactly as a real
	// output holds its lock around each callback.
	mu sync.Mutex

	// state guards the fields below independently of the output lock so the
	// inspection helpers never deadlock with an engine holding Lock.
	state sync.Mutex

	// AvailableErr is returned by [Output.Available].
	AvailableErr error

	// ResumeErr is returned by [Output.Resume].
	ResumeErr error

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountAttach records how many times Attach was called.
	CallCountAttach int

	attached []beep.Streamer // every streamer ever attached
	live     []beep.Streamer // streamers not yet exhausted
}

// New returns a mock output running at rate.
func New(rate beep.SampleRate) *Output {
	return &Output{rate: rate}
}

// SampleRate implements [audio.Output].
func (o *Output) SampleRate() beep.SampleRate { return o.rate }

// Available implements [audio.Output].
func (o *Output) Available() error {
	o.state.Lock()
	defer o.state.Unlock()
	return o.AvailableErr
}

// Resume implements [audio.Output].
func (o *Output) Resume() error {
	o.state.Lock()
	defer o.state.Unlock()
	o.CallCountResume++
	return o.ResumeErr
}

// Attach implements [audio.Output].
func (o *Output) Attach(s beep.Streamer) {
	o.state.Lock()
	defer o.state.Unlock()
	o.CallCountAttach++
	o.attached = append(o.attached, s)
	o.live = append(o.live, s)
}

// Lock implements [audio.Output].
func (o *Output) Lock() { o.mu.Lock() }

// Unlock implements [audio.Output].
func (o *Output) Unlock() { o.mu.Unlock() }

// Pull streams n frames from every live streamer, sums them and returns the
// mix. Streamers that report exhaustion are dropped, as a sound card would.
func (o *Output) Pull(n int) [][2]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state.Lock()
	live := append([]beep.Streamer(nil), o.live...)
	o.state.Unlock()

	mix := make([][2]float64, n)
	tmp := make([][2]float64, n)
	var keep []beep.Streamer
	for _, s := range live {
		got, ok := s.Stream(tmp)
		for i := range got {
			mix[i][0] += tmp[i][0]
			mix[i][1] += tmp[i][1]
		}
		if ok && got == n {
			keep = append(keep, s)
		}
	}

	o.state.Lock()
	// Keep streamers attached while we were streaming.
	o.live = append(keep, o.live[len(live):]...)
	o.state.Unlock()
	return mix
}

// Attached returns every streamer ever attached, in order.
func (o *Output) Attached() []beep.Streamer {
	o.state.Lock()
	defer o.state.Unlock()
	return append([]beep.Streamer(nil), o.attached...)
}

// Live returns the number of attached streamers not yet dropped.
func (o *Output) Live() int {
	o.state.Lock()
	defer o.state.Unlock()
	return len(o.live)
}
