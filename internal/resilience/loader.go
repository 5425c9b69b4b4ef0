package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"github.com/MrWong99/earmatch/pkg/audio"
)

// Fetcher loads one source URL. It is satisfied by the asset loader and by
// engine loaders in general.
type Fetcher interface {
	Load(ctx context.Context, url string) (*beep.Buffer, error)
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithBreakerConfig sets the template used for each host's breaker. Name and
// Logger are filled in per host.
func WithBreakerConfig(cfg CircuitBreakerConfig) LoaderOption {
	return func(l *Loader) { l.cfg = cfg }
}

// WithLogger sets the logger handed to every breaker.
func WithLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// Loader guards remote loads with one [CircuitBreaker] per host. Local files
// and unparsable URLs go straight to the wrapped fetcher.
type Loader struct {
	next Fetcher
	cfg  CircuitBreakerConfig
	log  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewLoader wraps next.
func NewLoader(next Fetcher, opts ...LoaderOption) *Loader {
	l := &Loader{
		next:     next,
		cfg:      CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second},
		log:      slog.Default(),
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load fetches rawURL through its host's breaker. A rejected call returns an
// error wrapping both [audio.ErrAssetUnavailable] and [ErrCircuitOpen].
func (l *Loader) Load(ctx context.Context, rawURL string) (*beep.Buffer, error) {
	cb := l.breakerFor(rawURL)
	if cb == nil {
		return l.next.Load(ctx, rawURL)
	}

	var buf *beep.Buffer
	err := cb.Execute(func() error {
		var err error
		buf, err = l.next.Load(ctx, rawURL)
		return err
	}, func(err error) bool {
		return ctx.Err() == nil && errors.Is(err, audio.ErrAssetUnavailable)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %s: %w", audio.ErrAssetUnavailable, rawURL, err)
	}
	return buf, err
}

// Forget drops rawURL from the wrapped fetcher's cache, if it keeps one.
func (l *Loader) Forget(rawURL string) {
	if f, ok := l.next.(interface{ Forget(string) }); ok {
		f.Forget(rawURL)
	}
}

// HostState reports the breaker state for host, or [StateClosed] if the host
// has never been contacted.
func (l *Loader) HostState(host string) State {
	l.mu.Lock()
	cb, ok := l.breakers[host]
	l.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return cb.State()
}

func (l *Loader) breakerFor(rawURL string) *CircuitBreaker {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	cb, ok := l.breakers[u.Host]
	if !ok {
		cfg := l.cfg
		cfg.Name = u.Host
		cfg.Logger = l.log
		cb = NewCircuitBreaker(cfg)
		l.breakers[u.Host] = cb
	}
	return cb
}
