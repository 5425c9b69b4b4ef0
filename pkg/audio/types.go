package audio

import "errors"

// Status is the load state of an engine's audio asset.
type Status int

const (
	// StatusIdle means no asset has been requested yet.
	StatusIdle Status = iota

	// StatusLoading means a fetch and decode is in flight.
	StatusLoading

	// StatusReady means the asset is decoded and playback may start.
	StatusReady

	// StatusError means the last load failed. It is terminal for that URL:
	// only a new load request leaves it.
	StatusError
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Error taxonomy for asset loading. All three collapse to [StatusError]; the
// distinction only feeds diagnostic logging.
var (
	// ErrAssetUnavailable means the source could not be fetched: a non-OK
	// HTTP response, a network failure or a missing file.
	ErrAssetUnavailable = errors.New("audio: asset unavailable")

	// ErrDecodeFailure means bytes were fetched but could not be decoded.
	ErrDecodeFailure = errors.New("audio: decode failure")

	// ErrCapabilityMissing means the runtime has no audio subsystem.
	ErrCapabilityMissing = errors.New("audio: no audio capability")
)

// Processor transforms a block of stereo frames in place.
type Processor interface {
	Process(frames [][2]float64)
}

// Node is a [Processor] whose parameters can be replaced while audio runs.
//
// Set must not reset internal signal state (filter memories, envelopes) so
// that retuning never produces a dropout or click. Set and Process are never
// called concurrently; the graph serialises them.
type Node[P any] interface {
	Processor
	Set(p P)
}

// NodeFactory builds the live node for one chain at the given sample rate.
type NodeFactory[P any] func(rate float64, p P) Node[P]
