package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gopxl/beep"

	enginemock "github.com/MrWong99/earmatch/internal/engine/mock"
	"github.com/MrWong99/earmatch/internal/resilience"
	"github.com/MrWong99/earmatch/pkg/audio"
)

func newGuard(next resilience.Fetcher) *resilience.Loader {
	return resilience.NewLoader(next,
		resilience.WithBreakerConfig(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}),
		resilience.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestLoader_OpensPerHost(t *testing.T) {
	t.Parallel()

	const (
		bad  = "https://down.example/a.wav"
		good = "https://up.example/b.wav"
	)
	next := &enginemock.Loader{Buffers: map[string]*beep.Buffer{
		good: enginemock.Buffer(48000, 480),
	}}
	l := newGuard(next)
	ctx := context.Background()

	for range 2 {
		if _, err := l.Load(ctx, bad); !errors.Is(err, audio.ErrAssetUnavailable) {
			t.Fatalf("err = %v, want ErrAssetUnavailable", err)
		}
	}
	if got := l.HostState("down.example"); got != resilience.StateOpen {
		t.Fatalf("down.example = %v, want open", got)
	}

	_, err := l.Load(ctx, bad)
	if !errors.Is(err, resilience.ErrCircuitOpen) || !errors.Is(err, audio.ErrAssetUnavailable) {
		t.Errorf("rejected err = %v, want ErrCircuitOpen and ErrAssetUnavailable", err)
	}
	if n := len(next.Calls()); n != 2 {
		t.Errorf("wrapped loader called %d times, want 2", n)
	}

	if _, err := l.Load(ctx, good); err != nil {
		t.Errorf("healthy host: %v", err)
	}
	if got := l.HostState("up.example"); got != resilience.StateClosed {
		t.Errorf("up.example = %v, want closed", got)
	}
}

func TestLoader_IgnoresLocalAndNeutralErrors(t *testing.T) {
	t.Parallel()

	const remote = "http://cdn.example/noise.wav"
	next := &enginemock.Loader{Errors: map[string]error{
		remote: fmt.Errorf("%w: noise.wav", audio.ErrDecodeFailure),
	}}
	l := newGuard(next)
	ctx := context.Background()

	for range 3 {
		if _, err := l.Load(ctx, "missing.wav"); !errors.Is(err, audio.ErrAssetUnavailable) {
			t.Fatalf("local err = %v", err)
		}
		if _, err := l.Load(ctx, remote); !errors.Is(err, audio.ErrDecodeFailure) {
			t.Fatalf("decode err = %v", err)
		}
	}
	if got := l.HostState("cdn.example"); got != resilience.StateClosed {
		t.Errorf("decode failures opened the breaker: %v", got)
	}
	if n := len(next.Calls()); n != 6 {
		t.Errorf("wrapped loader called %d times, want 6", n)
	}
}

func TestLoader_CancelledCallerDoesNotCount(t *testing.T) {
	t.Parallel()

	const remote = "https://slow.example/a.wav"
	next := &enginemock.Loader{Gate: make(chan struct{})}
	l := newGuard(next)

	for range 3 {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := l.Load(ctx, remote); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	}
	if got := l.HostState("slow.example"); got != resilience.StateClosed {
		t.Errorf("cancellations opened the breaker: %v", got)
	}
}

func TestLoader_ForgetForwards(t *testing.T) {
	t.Parallel()

	next := &enginemock.Loader{}
	l := newGuard(next)
	l.Forget("https://cdn.example/a.wav")
	if got := next.ForgottenCalls(); len(got) != 1 || got[0] != "https://cdn.example/a.wav" {
		t.Errorf("forgotten = %v", got)
	}
}
