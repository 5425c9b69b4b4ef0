package asset_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/audio/asset"
)

// sine returns n frames of a 440 Hz tone at rate.
func sine(rate beep.SampleRate, n int) beep.Streamer {
	i := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if i >= n {
			return 0, false
		}
		k := 0
		for ; k < len(samples) && i < n; k++ {
			v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
			samples[k] = [2]float64{v, v}
			i++
		}
		return k, true
	})
}

// writeWAV encodes n frames at rate into dir and returns the file path.
func writeWAV(t *testing.T, dir string, rate beep.SampleRate, n int) string {
	t.Helper()

	p := filepath.Join(dir, "tone.wav")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, sine(rate, n), format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return p
}

// serveFile serves the bytes at p for every request and counts requests.
func serveFile(t *testing.T, p string, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(delay)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestLoad_Sources(t *testing.T) {
	t.Parallel()

	p := writeWAV(t, t.TempDir(), 48000, 4800)
	srv, _ := serveFile(t, p, 0)

	tests := []struct {
		name string
		url  string
	}{
		{"bare path", p},
		{"file url", "file://" + filepath.ToSlash(p)},
		{"http", srv.URL + "/drums"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := asset.New(48000)
			buf, err := l.Load(context.Background(), tt.url)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if buf.Len() != 4800 {
				t.Errorf("Len = %d, want 4800", buf.Len())
			}
			if buf.Format().SampleRate != 48000 {
				t.Errorf("SampleRate = %d, want 48000", buf.Format().SampleRate)
			}
			if !l.Cached(tt.url) {
				t.Error("buffer not cached after successful load")
			}
		})
	}
}

func TestLoad_Resamples(t *testing.T) {
	t.Parallel()

	p := writeWAV(t, t.TempDir(), 24000, 2400)
	for _, q := range []int{1, asset.DefaultResampleQuality} {
		l := asset.New(48000, asset.WithResampleQuality(q))
		buf, err := l.Load(context.Background(), p)
		if err != nil {
			t.Fatalf("quality %d: Load: %v", q, err)
		}
		if got := buf.Len(); got < 4700 || got > 4900 {
			t.Errorf("quality %d: resampled Len = %d, want ~4800", q, got)
		}
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	l := asset.New(48000)
	_, err := l.Load(context.Background(), srv.URL+"/missing.wav")
	if !errors.Is(err, audio.ErrAssetUnavailable) {
		t.Fatalf("err = %v, want ErrAssetUnavailable", err)
	}
	if l.Cached(srv.URL + "/missing.wav") {
		t.Error("failed load was cached")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	garbage := filepath.Join(dir, "noise.bin")
	if err := os.WriteFile(garbage, []byte("definitely not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	badWAV := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(badWAV, []byte("RIFF\x00\x00\x00\x00WAVEjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	big := writeWAV(t, dir, 48000, 48000)

	tests := []struct {
		name string
		url  string
		opts []asset.Option
		want error
	}{
		{"missing file", filepath.Join(dir, "nope.wav"), nil, audio.ErrAssetUnavailable},
		{"unsupported scheme", "ftp://example.com/a.wav", nil, audio.ErrAssetUnavailable},
		{"unknown format", garbage, nil, audio.ErrDecodeFailure},
		{"corrupt wav", badWAV, nil, audio.ErrDecodeFailure},
		{"too large", big, []asset.Option{asset.WithMaxBytes(1024)}, audio.ErrAssetUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := asset.New(48000, tt.opts...)
			if _, err := l.Load(context.Background(), tt.url); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_SharedFetch(t *testing.T) {
	t.Parallel()

	p := writeWAV(t, t.TempDir(), 48000, 480)
	srv, hits := serveFile(t, p, 50*time.Millisecond)
	l := asset.New(48000)

	var wg sync.WaitGroup
	bufs := make([]*beep.Buffer, 8)
	for i := range bufs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := l.Load(context.Background(), srv.URL+"/a.wav")
			if err != nil {
				t.Errorf("Load: %v", err)
			}
			bufs[i] = buf
		}()
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	for i, b := range bufs {
		if b != bufs[0] {
			t.Errorf("caller %d got a different buffer", i)
		}
	}

	// Cached: no further fetch.
	if _, err := l.Load(context.Background(), srv.URL+"/a.wav"); err != nil {
		t.Fatal(err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits after cached load = %d, want 1", got)
	}

	l.Forget(srv.URL + "/a.wav")
	if _, err := l.Load(context.Background(), srv.URL+"/a.wav"); err != nil {
		t.Fatal(err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits after Forget = %d, want 2", got)
	}
}

func TestLoad_ContextCancelled(t *testing.T) {
	t.Parallel()

	p := writeWAV(t, t.TempDir(), 48000, 480)
	srv, _ := serveFile(t, p, 200*time.Millisecond)
	l := asset.New(48000)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Load(ctx, srv.URL+"/slow.wav"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

// stallServer blocks the first request until the client goes away and answers
// 404 afterwards. aborted is closed once the stalled request was cancelled.
func stallServer(t *testing.T) (srv *httptest.Server, arrived, aborted <-chan struct{}) {
	t.Helper()

	in, out := make(chan struct{}), make(chan struct{})
	done := make(chan struct{})
	var hits atomic.Int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 1 {
			http.NotFound(w, r)
			return
		}
		close(in)
		select {
		case <-r.Context().Done():
			close(out)
		case <-done:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(done) })
	return srv, in, out
}

func TestLoad_LastWaiterCancelsSharedFetch(t *testing.T) {
	t.Parallel()

	srv, arrived, aborted := stallServer(t)
	l := asset.New(48000)
	url := srv.URL + "/stalled.wav"

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx, url)
		errc <- err
	}()
	<-arrived
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("first Load err = %v, want context.Canceled", err)
	}

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned fetch is still running")
	}

	// A retry must start a fresh fetch instead of joining the stalled one.
	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	if _, err := l.Load(rctx, url); !errors.Is(err, audio.ErrAssetUnavailable) {
		t.Errorf("retry err = %v, want ErrAssetUnavailable", err)
	}
}

func TestLoad_FetchTimeout(t *testing.T) {
	t.Parallel()

	srv, _, _ := stallServer(t)
	l := asset.New(48000, asset.WithFetchTimeout(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := l.Load(ctx, srv.URL+"/stalled.wav")
	if !errors.Is(err, audio.ErrAssetUnavailable) {
		t.Fatalf("err = %v, want ErrAssetUnavailable from the client timeout", err)
	}
	if ctx.Err() != nil {
		t.Error("caller deadline fired before the fetch timeout")
	}
}
