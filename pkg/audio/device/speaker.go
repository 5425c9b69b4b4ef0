// Package device provides [audio.Output] implementations backed by the host
// audio subsystem.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/MrWong99/earmatch/pkg/audio"
)

var (
	_ audio.Output = (*Speaker)(nil)
	_ audio.Output = Null{}
)

// DefaultBuffer is the speaker buffer length used when none is given.
const DefaultBuffer = 50 * time.Millisecond

// The beep speaker is a process-wide singleton.
var (
	initOnce sync.Once
	initRate beep.SampleRate
	initErr  error
)

// Speaker is the system sound card via the beep speaker package.
type Speaker struct {
	rate beep.SampleRate
	err  error
}

// NewSpeaker initialises the sound card at rate with the given buffer length.
// Initialisation failure does not return an error: the speaker then reports
// [audio.ErrCapabilityMissing] from Available so that loads fail the normal
// way.
func NewSpeaker(rate beep.SampleRate, buffer time.Duration) *Speaker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	initOnce.Do(func() {
		initRate = rate
		if err := speaker.Init(rate, rate.N(buffer)); err != nil {
			initErr = fmt.Errorf("%w: %w", audio.ErrCapabilityMissing, err)
		}
	})

	s := &Speaker{rate: initRate, err: initErr}
	if s.err == nil && rate != initRate {
		s.err = fmt.Errorf("%w: speaker already running at %d Hz", audio.ErrCapabilityMissing, initRate)
	}
	return s
}

// SampleRate implements [audio.Output].
func (s *Speaker) SampleRate() beep.SampleRate { return s.rate }

// Available implements [audio.Output].
func (s *Speaker) Available() error { return s.err }

// Resume implements [audio.Output].
func (s *Speaker) Resume() error {
	if s.err != nil {
		return s.err
	}
	return speaker.Resume()
}

// Suspend pauses the output clock.
func (s *Speaker) Suspend() error {
	if s.err != nil {
		return s.err
	}
	return speaker.Suspend()
}

// Attach implements [audio.Output].
func (s *Speaker) Attach(st beep.Streamer) {
	if s.err != nil {
		return
	}
	speaker.Play(st)
}

// Lock implements [audio.Output].
func (s *Speaker) Lock() {
	if s.err == nil {
		speaker.Lock()
	}
}

// Unlock implements [audio.Output].
func (s *Speaker) Unlock() {
	if s.err == nil {
		speaker.Unlock()
	}
}

// Close drops every attached streamer and closes the device.
func (s *Speaker) Close() error {
	if s.err != nil {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	return nil
}

// Null is an output without an audio subsystem. Every engine using it ends its
// loads in the error state.
type Null struct {
	Rate beep.SampleRate
}

// SampleRate implements [audio.Output].
func (n Null) SampleRate() beep.SampleRate { return n.Rate }

// Available implements [audio.Output].
func (Null) Available() error {
	return fmt.Errorf("%w: output disabled", audio.ErrCapabilityMissing)
}

// Resume implements [audio.Output].
func (n Null) Resume() error { return n.Available() }

// Attach implements [audio.Output].
func (Null) Attach(beep.Streamer) {}

// Lock implements [audio.Output].
func (Null) Lock() {}

// Unlock implements [audio.Output].
func (Null) Unlock() {}
