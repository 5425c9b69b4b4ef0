package mixer

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"github.com/MrWong99/earmatch/pkg/audio"
)

// Compile-time interface assertion.
var _ beep.Streamer = (*Bus)(nil)

// Option configures a [Bus] during construction.
type Option func(*Bus)

// WithTimeConstant sets the time constant of every chain's gain ramp. Zero
// makes gain changes instantaneous.
func WithTimeConstant(tau time.Duration) Option {
	return func(b *Bus) {
		b.tau = tau
	}
}

// WithEndHandler registers fn to run once when a non-looping source runs out.
// fn is called from the output goroutine after the bus has released itself; it
// must not block and must not lock the output.
func WithEndHandler(fn func()) Option {
	return func(b *Bus) {
		b.onEnd = fn
	}
}

// chain is one parallel processing path of the bus.
type chain struct {
	name string
	node audio.Processor
	gain Ramp
}

// Bus fans one [Source] out to several chains and sums their gain-weighted
// outputs.
//
// All exported methods are safe for concurrent use with Stream.
type Bus struct {
	rate beep.SampleRate
	tau  time.Duration

	mu       sync.Mutex
	src      *Source
	chains   []*chain
	in, work [][2]float64 // reused block buffers
	clock    int64        // frames emitted since the bus was built
	released bool
	ended    bool

	onEnd   func()
	endOnce sync.Once
}

// NewBus builds an empty bus over src. Add chains with [Bus.AddChain] before
// attaching the bus to an output.
func NewBus(src *Source, rate beep.SampleRate, opts ...Option) *Bus {
	b := &Bus{
		rate: rate,
		tau:  DefaultTimeConstant,
		src:  src,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// AddChain appends a chain that runs node and starts at the given gain.
// Chain names must be unique.
func (b *Bus) AddChain(name string, node audio.Processor, gain float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.find(name) != nil {
		return fmt.Errorf("mixer: duplicate chain %q", name)
	}
	b.chains = append(b.chains, &chain{
		name: name,
		node: node,
		gain: NewRamp(gain, b.tau, b.rate),
	})
	return nil
}

// find returns the named chain. Caller must hold b.mu.
func (b *Bus) find(name string) *chain {
	for _, c := range b.chains {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Stream implements [beep.Streamer].
func (b *Bus) Stream(samples [][2]float64) (n int, ok bool) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return 0, false
	}

	b.in = grow(b.in, len(samples))
	b.work = grow(b.work, len(samples))
	n = b.src.Read(b.in)

	audio.Silence(samples[:n])
	for _, c := range b.chains {
		copy(b.work[:n], b.in[:n])
		c.node.Process(b.work[:n])
		for i := range n {
			g := c.gain.Next()
			samples[i][0] += b.work[i][0] * g
			samples[i][1] += b.work[i][1] * g
		}
	}
	b.clock += int64(n)

	ended := n < len(samples)
	if ended {
		b.released = true
		b.ended = true
	}
	b.mu.Unlock()

	if ended {
		b.endOnce.Do(func() {
			if b.onEnd != nil {
				b.onEnd()
			}
		})
	}
	return n, n > 0
}

// Err implements [beep.Streamer].
func (b *Bus) Err() error { return nil }

// Release stops the bus permanently. Subsequent Stream calls report
// exhaustion so the output drops it. Release is idempotent and does not run
// the end handler.
func (b *Bus) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
}

// Released reports whether the bus has been released or has ended.
func (b *Bus) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// Ended reports whether the source ran out naturally.
func (b *Bus) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Crossfade ramps the named chain towards unity and every other chain
// towards silence, starting from the current clock.
func (b *Bus) Crossfade(active string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.find(active) == nil {
		return fmt.Errorf("mixer: unknown chain %q", active)
	}
	for _, c := range b.chains {
		if c.name == active {
			c.gain.SetTarget(1)
		} else {
			c.gain.SetTarget(0)
		}
	}
	return nil
}

// Gain returns the current value of the named chain's ramp.
func (b *Bus) Gain(name string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.find(name)
	if c == nil {
		return 0, false
	}
	return c.gain.Value(), true
}

// Update runs fn while no block is being processed. Node retuning goes
// through Update so Set and Process never overlap.
func (b *Bus) Update(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// SetLooping changes the source's loop flag while playing.
func (b *Bus) SetLooping(loop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.src.SetLooping(loop)
}

// Clock returns the number of frames the bus has emitted.
func (b *Bus) Clock() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock
}

// Position returns the source read position in frames.
func (b *Bus) Position() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.src.Position()
}

func grow(buf [][2]float64, n int) [][2]float64 {
	if cap(buf) < n {
		return make([][2]float64, n)
	}
	return buf[:n]
}
