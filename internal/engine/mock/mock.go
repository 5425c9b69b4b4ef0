// Package mock provides an in-memory implementation of [engine.Loader] for use
// in unit tests.
//
// The mock records every Load call and lets the test configure results per
// URL via exported fields. It can also hold loads open until the test
// releases them, which makes supersession and cancellation deterministic.
// It is safe for concurrent use.
//
// Example:
//
//	l := &mock.Loader{Buffers: map[string]*beep.Buffer{
//	    "drums.wav": mock.Buffer(48000, 4800),
//	}}
//	eng := engine.New(out, l, chains)
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopxl/beep"

	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/pkg/audio"
)

// Compile-time interface assertion.
var _ engine.Loader = (*Loader)(nil)

// Loader is a mock implementation of [engine.Loader].
// Set the exported result fields before use; inspect the Call* fields after.
type Loader struct {
	mu sync.Mutex

	// Buffers maps URLs to the buffer returned for them.
	Buffers map[string]*beep.Buffer

	// Errors maps URLs to the error returned for them. Errors take
	// precedence over Buffers. URLs in neither map fail with
	// [audio.ErrAssetUnavailable].
	Errors map[string]error

	// Gate, when non-nil, blocks every Load until it is closed or the load's
	// context ends.
	Gate chan struct{}

	// LoadCalls records the URL of every Load invocation, in order.
	LoadCalls []string

	// Cancelled records URLs whose Load returned because its context ended.
	Cancelled []string

	// Forgotten records the URL of every Forget invocation, in order.
	Forgotten []string
}

// Load implements [engine.Loader].
func (l *Loader) Load(ctx context.Context, url string) (*beep.Buffer, error) {
	l.mu.Lock()
	l.LoadCalls = append(l.LoadCalls, url)
	gate := l.Gate
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			l.mu.Lock()
			l.Cancelled = append(l.Cancelled, url)
			l.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.Errors[url]; ok {
		return nil, err
	}
	if buf, ok := l.Buffers[url]; ok {
		return buf, nil
	}
	return nil, fmt.Errorf("%w: %s: status 404", audio.ErrAssetUnavailable, url)
}

// Forget records url. Buffers and Errors are left as configured.
func (l *Loader) Forget(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Forgotten = append(l.Forgotten, url)
}

// ForgottenCalls returns a copy of Forgotten.
func (l *Loader) ForgottenCalls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Forgotten...)
}

// Calls returns a copy of LoadCalls.
func (l *Loader) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.LoadCalls...)
}

// CancelledCalls returns a copy of Cancelled.
func (l *Loader) CancelledCalls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Cancelled...)
}

// Buffer returns a stereo buffer of n frames at rate whose left channel is a
// rising ramp in (0,1) and whose right channel mirrors it, so any frame
// identifies its position in the source.
func Buffer(rate beep.SampleRate, n int) *beep.Buffer {
	buf := beep.NewBuffer(beep.Format{SampleRate: rate, NumChannels: 2, Precision: 3})
	i := 0
	buf.Append(beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if i >= n {
			return 0, false
		}
		k := 0
		for ; k < len(samples) && i < n; k++ {
			v := float64(i+1) / float64(n+1)
			samples[k] = [2]float64{v, v}
			i++
		}
		return k, true
	}))
	return buf
}
