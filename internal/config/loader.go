package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Bounds enforced by [Validate].
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinBufferMs   = 5
	MaxBufferMs   = 1000
	MaxCrossfade  = 1000
	MinOptions    = 2
	MaxOptions    = 8
	MaxTolerance  = 4.0
	MaxQuality    = 64
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	a := cfg.Audio
	if a.Output != "" && !a.Output.IsValid() {
		errs = append(errs, fmt.Errorf("audio.output %q is invalid; valid values: speaker, none", a.Output))
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate))
	}
	if a.BufferMs < MinBufferMs || a.BufferMs > MaxBufferMs {
		errs = append(errs, fmt.Errorf("audio.buffer_ms %d is out of range [%d, %d]", a.BufferMs, MinBufferMs, MaxBufferMs))
	}
	if a.CrossfadeMs < 0 || a.CrossfadeMs > MaxCrossfade {
		errs = append(errs, fmt.Errorf("audio.crossfade_ms %d is out of range [0, %d]", a.CrossfadeMs, MaxCrossfade))
	}
	if a.MaxAssetBytes <= 0 {
		errs = append(errs, fmt.Errorf("audio.max_asset_bytes must be positive, got %d", a.MaxAssetBytes))
	}
	if a.FetchTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.fetch_timeout_ms must be positive, got %d", a.FetchTimeoutMs))
	}
	if a.ResampleQuality < 1 || a.ResampleQuality > MaxQuality {
		errs = append(errs, fmt.Errorf("audio.resample_quality %d is out of range [1, %d]", a.ResampleQuality, MaxQuality))
	}

	// Trainers
	t := cfg.Trainers
	for _, m := range []struct {
		name  string
		score int
	}{{"eq", t.EQ.SuccessScore}, {"compression", t.Compression.SuccessScore}} {
		if m.score < 1 || m.score > 100 {
			errs = append(errs, fmt.Errorf("trainers.%s.success_score %d is out of range [1, 100]", m.name, m.score))
		}
	}
	if t.Gain.OptionCount < MinOptions || t.Gain.OptionCount > MaxOptions {
		errs = append(errs, fmt.Errorf("trainers.gain.option_count %d is out of range [%d, %d]", t.Gain.OptionCount, MinOptions, MaxOptions))
	}
	if t.Gain.MinSeparationDB <= 0 {
		errs = append(errs, fmt.Errorf("trainers.gain.min_separation_db must be positive, got %.2f", t.Gain.MinSeparationDB))
	}
	if t.Gain.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("trainers.gain.max_attempts must be positive, got %d", t.Gain.MaxAttempts))
	}
	// 19 dB of usable range on each side of zero.
	if t.Gain.MinSeparationDB > 0 && float64(t.Gain.OptionCount-1)*t.Gain.MinSeparationDB > 19 {
		slog.Warn("trainers.gain cannot always place every option; rounds may offer fewer choices",
			"option_count", t.Gain.OptionCount,
			"min_separation_db", t.Gain.MinSeparationDB,
		)
	}
	if tol := t.Frequency.ToleranceOctaves; tol <= 0 || tol > MaxTolerance {
		errs = append(errs, fmt.Errorf("trainers.frequency.tolerance_octaves %.3f is out of range (0, %.0f]", tol, MaxTolerance))
	}

	// Sources
	seen := make(map[string]int, len(cfg.Sources))
	for i, s := range cfg.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[s.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of sources[%d]", prefix, s.Name, prev))
			}
			seen[s.Name] = i
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
	}

	return errors.Join(errs...)
}
