// Package audio defines the interfaces and types shared by the live audio
// side of earmatch.
//
// The two primary abstractions are:
//
//   - [Output]: the realtime sink that pulls samples from an attached
//     playback graph on its own clock (a sound card, or a mock in tests).
//   - [Node]: a live processing stage whose parameters can be retuned while
//     audio is flowing through it.
//
// Concrete outputs live in adapter packages (audio/device, audio/mock); the
// graph itself lives in audio/mixer and the nodes in audio/dsp. The
// interfaces are intentionally narrow so the comparison engine stays
// independent of the playback backend.
package audio

import "github.com/gopxl/beep"

// Output is the realtime sink a playback graph is attached to.
//
// The output pulls samples from attached streamers on its own goroutine.
// Lock and Unlock bracket any change that must be atomic with respect to that
// goroutine, such as releasing one graph and attaching the next.
type Output interface {
	// SampleRate is the rate every attached streamer must produce.
	SampleRate() beep.SampleRate

	// Available returns nil when the audio subsystem can play sound and an
	// error wrapping [ErrCapabilityMissing] otherwise.
	Available() error

	// Resume restarts the output clock if it was suspended. Resuming a
	// running output is a no-op.
	Resume() error

	// Attach starts pulling samples from s. The output drops s once it
	// reports ok == false.
	Attach(s beep.Streamer)

	// Lock blocks the output goroutine between two Stream calls.
	Lock()

	// Unlock releases a previous Lock.
	Unlock()
}
