// Package asset fetches and decodes the audio sources played by the
// comparison engine.
//
// A [Loader] resolves a URL (http, https, file or a bare path), decodes WAV or
// MP3, resamples to the output rate and keeps the result in memory so that
// each URL is decoded at most once. Concurrent requests for the same URL share
// a single fetch.
package asset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/earmatch/pkg/audio"
)

const (
	// DefaultMaxBytes bounds the encoded size of a single asset.
	DefaultMaxBytes int64 = 64 << 20

	// DefaultResampleQuality is the beep resampler quality used when the
	// source rate differs from the output rate.
	DefaultResampleQuality = 4

	// DefaultFetchTimeout bounds one remote fetch.
	DefaultFetchTimeout = 30 * time.Second

	// bufferPrecision is the byte depth of cached buffers (24-bit).
	bufferPrecision = 3
)

// Option configures a [Loader] during construction.
type Option func(*Loader)

// WithHTTPClient sets the client used for http and https URLs. The client's
// own Timeout then governs remote fetches instead of [WithFetchTimeout].
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithFetchTimeout bounds a whole remote fetch, body included. Non-positive
// values keep the default.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxBytes caps the encoded asset size. Non-positive values keep the
// default.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithResampleQuality sets the beep resampler quality (1 to 64).
func WithResampleQuality(q int) Option {
	return func(l *Loader) {
		if q > 0 {
			l.quality = q
		}
	}
}

// Loader fetches, decodes and caches audio buffers at one sample rate.
//
// All exported methods are safe for concurrent use.
type Loader struct {
	rate     beep.SampleRate
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	quality  int

	group singleflight.Group

	mu      sync.Mutex
	cache   map[string]*beep.Buffer
	flights map[string]*flight
}

// flight is the shared fetch of one URL. It is cancelled once no caller is
// waiting for it any more.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New returns a loader producing buffers at rate.
func New(rate beep.SampleRate, opts ...Option) *Loader {
	l := &Loader{
		rate:     rate,
		timeout:  DefaultFetchTimeout,
		maxBytes: DefaultMaxBytes,
		quality:  DefaultResampleQuality,
		cache:    make(map[string]*beep.Buffer),
		flights:  make(map[string]*flight),
	}
	for _, o := range opts {
		o(l)
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: l.timeout}
	}
	return l
}

// SampleRate is the rate of every buffer the loader returns.
func (l *Loader) SampleRate() beep.SampleRate { return l.rate }

// Load returns the decoded buffer for rawURL, fetching it on first use.
//
// Errors wrap [audio.ErrAssetUnavailable] or [audio.ErrDecodeFailure]. Failed
// loads are not cached; a later call tries again. Concurrent callers share
// one fetch. If ctx ends first, Load returns ctx.Err(); the shared fetch keeps
// running for the remaining callers and is cancelled when the last one
// leaves, so a later Load starts afresh.
func (l *Loader) Load(ctx context.Context, rawURL string) (*beep.Buffer, error) {
	if buf, ok := l.cached(rawURL); ok {
		return buf, nil
	}

	f := l.join(rawURL)
	ch := l.group.DoChan(rawURL, func() (any, error) {
		if buf, ok := l.cached(rawURL); ok {
			return buf, nil
		}
		buf, err := l.load(f.ctx, rawURL)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[rawURL] = buf
		l.mu.Unlock()
		return buf, nil
	})

	select {
	case <-ctx.Done():
		l.leave(rawURL, f)
		return nil, ctx.Err()
	case res := <-ch:
		l.leave(rawURL, f)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*beep.Buffer), nil
	}
}

// join registers a waiter on the shared fetch of rawURL.
func (l *Loader) join(rawURL string) *flight {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.flights[rawURL]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &flight{ctx: ctx, cancel: cancel}
		l.flights[rawURL] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter. The last one out cancels the fetch and detaches it
// from the singleflight key, so nobody can join an abandoned call.
func (l *Loader) leave(rawURL string, f *flight) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f.waiters--
	if f.waiters > 0 || l.flights[rawURL] != f {
		return
	}
	delete(l.flights, rawURL)
	l.group.Forget(rawURL)
	f.cancel()
}

// Cached reports whether rawURL is already decoded.
func (l *Loader) Cached(rawURL string) bool {
	_, ok := l.cached(rawURL)
	return ok
}

// Forget drops rawURL from the cache.
func (l *Loader) Forget(rawURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, rawURL)
}

func (l *Loader) cached(rawURL string) (*beep.Buffer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf, ok := l.cache[rawURL]
	return buf, ok
}

func (l *Loader) load(ctx context.Context, rawURL string) (*beep.Buffer, error) {
	data, hint, err := l.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return l.decode(data, hint)
}

// fetch returns the raw bytes of rawURL and a format hint (Content-Type or the
// path extension).
func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: parse %q: %w", audio.ErrAssetUnavailable, rawURL, err)
	}

	var (
		body io.ReadCloser
		hint = strings.ToLower(path.Ext(u.Path))
	)
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", audio.ErrAssetUnavailable, err)
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("%w: get %s: %w", audio.ErrAssetUnavailable, rawURL, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, "", fmt.Errorf("%w: get %s: status %d", audio.ErrAssetUnavailable, rawURL, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" && hint == "" {
			hint = strings.ToLower(ct)
		}
		body = resp.Body
	case "file", "":
		p := u.Path
		if u.Scheme == "" {
			p = rawURL
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", audio.ErrAssetUnavailable, err)
		}
		body = f
	default:
		return nil, "", fmt.Errorf("%w: unsupported scheme %q", audio.ErrAssetUnavailable, u.Scheme)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, l.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %w", audio.ErrAssetUnavailable, rawURL, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", audio.ErrAssetUnavailable, rawURL, l.maxBytes)
	}
	return data, hint, nil
}

// decode turns encoded bytes into a buffer at the loader's rate.
func (l *Loader) decode(data []byte, hint string) (*beep.Buffer, error) {
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch detect(hint, data) {
	case formatWAV:
		s, format, err = wav.Decode(bytes.NewReader(data))
	case formatMP3:
		s, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("%w: unrecognised format", audio.ErrDecodeFailure)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDecodeFailure, err)
	}
	defer s.Close()

	var st beep.Streamer = s
	if format.SampleRate != l.rate {
		st = beep.Resample(l.quality, format.SampleRate, l.rate, s)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: l.rate, NumChannels: 2, Precision: bufferPrecision})
	buf.Append(st)
	if err := st.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDecodeFailure, err)
	}
	return buf, nil
}

type container int

const (
	formatUnknown container = iota
	formatWAV
	formatMP3
)

// detect picks a decoder from the hint, falling back to the file header.
func detect(hint string, head []byte) container {
	switch {
	case hint == ".wav" || hint == ".wave" || strings.Contains(hint, "wav"):
		return formatWAV
	case hint == ".mp3" || strings.Contains(hint, "mpeg") || strings.Contains(hint, "mp3"):
		return formatMP3
	}
	switch {
	case len(head) >= 12 && string(head[:4]) == "RIFF" && string(head[8:12]) == "WAVE":
		return formatWAV
	case len(head) >= 3 && string(head[:3]) == "ID3":
		return formatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return formatMP3
	}
	return formatUnknown
}
