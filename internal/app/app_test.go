package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/earmatch/internal/app"
	"github.com/MrWong99/earmatch/internal/config"
	enginemock "github.com/MrWong99/earmatch/internal/engine/mock"
	"github.com/MrWong99/earmatch/internal/observe"
	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/pkg/audio"
	audiomock "github.com/MrWong99/earmatch/pkg/audio/mock"
	"github.com/MrWong99/earmatch/pkg/challenge"
	"github.com/MrWong99/earmatch/pkg/types"
)

const rate = beep.SampleRate(48000)

// testConfig returns the default config with one named source.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{{Name: "drums", URL: "drums.wav"}}
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testLoader() *enginemock.Loader {
	return &enginemock.Loader{Buffers: map[string]*beep.Buffer{
		"drums.wav": enginemock.Buffer(rate, 48000),
	}}
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithOutput(audiomock.New(rate)),
		app.WithLoader(testLoader()),
		app.WithGenerator(challenge.NewSeeded(7)),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), nil),
	}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func waitReady(t *testing.T, tr trainer.Trainer) audio.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := tr.WaitReady(ctx)
	if err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	return status
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), app.WithMetrics(testMetrics(t)))
	if a.Sessions() == nil {
		t.Fatal("Sessions() returned nil")
	}
	if a.Sessions().IsActive() {
		t.Error("New() started a session")
	}
	if addr := a.Addr(); addr != "" {
		t.Errorf("Addr() = %q without listen_addr", addr)
	}
}

func TestNew_OutputNoneFailsLoads(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Audio.Output = config.OutputNone
	loader := testLoader()
	a, err := app.New(context.Background(), cfg,
		app.WithLoader(loader),
		app.WithMetrics(testMetrics(t)),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), nil),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if err := a.Sessions().Start(context.Background(), trainer.ModeEQ, "drums"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr := a.Sessions().Trainer()
	if status := waitReady(t, tr); status != audio.StatusError {
		t.Fatalf("status = %v, want error", status)
	}
	if err := tr.EngineState().Err; !errors.Is(err, audio.ErrCapabilityMissing) {
		t.Errorf("State().Err = %v, want ErrCapabilityMissing", err)
	}
	if n := len(loader.Calls()); n != 0 {
		t.Errorf("loader called %d times without audio", n)
	}
}

func TestRun_ServesHealthAndMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	a := newTestApp(t, cfg)

	base := "http://" + a.Addr()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	if code, body := get("/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "idle") {
		t.Errorf("/readyz without session = %d %s, want 503 idle", code, body)
	}

	if err := a.Sessions().Start(context.Background(), trainer.ModeEQ, "drums"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if status := waitReady(t, a.Sessions().Trainer()); status != audio.StatusReady {
		t.Fatalf("status = %v, want ready", status)
	}
	if code, body := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz = %d %s, want 200", code, body)
	}
	// The load counter is recorded just after the engine settles.
	deadline := time.Now().Add(2 * time.Second)
	for {
		code, body := get("/metrics")
		if code == http.StatusOK && strings.Contains(body, "earmatch_asset_loads") {
			break
		}
		if time.Now().After(deadline) {
			t.Errorf("/metrics = %d, missing asset load counter", code)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestApplyDiff_HotReloadsTunables(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	a := newTestApp(t, testConfig(),
		app.WithMetrics(testMetrics(t)),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level})), level),
	)
	sm := a.Sessions()
	if err := sm.Start(context.Background(), trainer.ModeEQ, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	old := testConfig()
	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Trainers.EQ.SuccessScore = 50
	next.Sources = append(next.Sources, config.SourceConfig{Name: "bass", URL: "bass.wav"})
	a.ApplyDiff(config.Diff(old, next), next)

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level = %v, want debug", got)
	}

	eq := sm.Trainer().(*trainer.EQMatch)
	target := types.FilterSettings{Type: types.Peaking, Frequency: 1000, Gain: 6, Q: 1}
	eq.SetTarget(target)
	snap := eq.SetUser(target.WithGain(-6))
	if snap.Score != 78 || !snap.Success {
		t.Errorf("score = %d success = %v, want 78 true under a bar of 50", snap.Score, snap.Success)
	}

	if err := sm.LoadSource(context.Background(), "bass"); err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if got := sm.Info().Source; got != "bass.wav" {
		t.Errorf("source = %q, want the reloaded bass.wav", got)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig(), app.WithMetrics(testMetrics(t)))
	if err := a.Sessions().Start(context.Background(), trainer.ModeGain, "drums"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if a.Sessions().IsActive() {
		t.Error("session still active after Shutdown")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestShutdown_RespectsDeadline(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(),
		app.WithOutput(audiomock.New(rate)),
		app.WithLoader(testLoader()),
		app.WithMetrics(testMetrics(t)),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), nil),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown(cancelled) = %v, want context.Canceled", err)
	}
}
