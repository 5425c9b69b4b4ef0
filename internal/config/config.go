// Package config provides the configuration schema, loader and hot-reload
// watcher for earmatch.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the Jaro-Winkler similarity a configured source name
// must reach to be offered as a correction.
const suggestThreshold = 0.85

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to its slog level. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OutputKind selects the audio output backend.
type OutputKind string

const (
	// OutputSpeaker plays through the system sound card.
	OutputSpeaker OutputKind = "speaker"

	// OutputNone runs without audio. Every load ends in the error state
	// because the audio capability is missing.
	OutputNone OutputKind = "none"
)

// IsValid reports whether o is a recognised output kind.
func (o OutputKind) IsValid() bool {
	return o == OutputSpeaker || o == OutputNone
}

// Config is the root configuration structure for earmatch.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Trainers TrainersConfig `yaml:"trainers"`
	Sources  []SourceConfig `yaml:"sources"`
}

// ServerConfig holds logging and the optional introspection listener.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives logs while the terminal UI owns the screen. When empty,
	// logs are discarded during the TUI session.
	LogFile string `yaml:"log_file"`

	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., "127.0.0.1:9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// AudioConfig configures playback and asset loading.
type AudioConfig struct {
	Output     OutputKind `yaml:"output"`
	SampleRate int        `yaml:"sample_rate"`

	// BufferMs is the speaker buffer length in milliseconds.
	BufferMs int `yaml:"buffer_ms"`

	// CrossfadeMs is the time constant of monitor switches in milliseconds.
	CrossfadeMs int `yaml:"crossfade_ms"`

	// Loop sets whether playback wraps at the end of the source.
	Loop bool `yaml:"loop"`

	// MaxAssetBytes caps the size of a fetched source file.
	MaxAssetBytes int64 `yaml:"max_asset_bytes"`

	// FetchTimeoutMs bounds one remote source fetch in milliseconds.
	FetchTimeoutMs int `yaml:"fetch_timeout_ms"`

	// ResampleQuality is the beep resampler quality for sources whose rate
	// differs from the output rate.
	ResampleQuality int `yaml:"resample_quality"`
}

// Buffer returns BufferMs as a duration.
func (a AudioConfig) Buffer() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}

// FetchTimeout returns FetchTimeoutMs as a duration.
func (a AudioConfig) FetchTimeout() time.Duration {
	return time.Duration(a.FetchTimeoutMs) * time.Millisecond
}

// Crossfade returns CrossfadeMs as a duration.
func (a AudioConfig) Crossfade() time.Duration {
	return time.Duration(a.CrossfadeMs) * time.Millisecond
}

// TrainersConfig holds per-mode tuning.
type TrainersConfig struct {
	EQ          MatchConfig     `yaml:"eq"`
	Compression MatchConfig     `yaml:"compression"`
	Gain        GainConfig      `yaml:"gain"`
	Frequency   FrequencyConfig `yaml:"frequency"`
}

// MatchConfig tunes a matching trainer.
type MatchConfig struct {
	// SuccessScore is the score at which a round is won, in [1, 100].
	SuccessScore int `yaml:"success_score"`
}

// GainConfig tunes gain-delta distractor generation.
type GainConfig struct {
	OptionCount     int     `yaml:"option_count"`
	MinSeparationDB float64 `yaml:"min_separation_db"`
	MaxAttempts     int     `yaml:"max_attempts"`
}

// FrequencyConfig tunes the frequency-spot trainer.
type FrequencyConfig struct {
	// ToleranceOctaves is how far a guess may miss and still be correct.
	ToleranceOctaves float64 `yaml:"tolerance_octaves"`
}

// SourceConfig names an audio source.
type SourceConfig struct {
	Name string `yaml:"name"`

	// URL is an http(s) or file URL, or a plain file path.
	URL string `yaml:"url"`
}

// Default returns the configuration used when no file is given. Loaded files
// are decoded on top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Audio: AudioConfig{
			Output:          OutputSpeaker,
			SampleRate:      48000,
			BufferMs:        50,
			CrossfadeMs:     15,
			Loop:            true,
			MaxAssetBytes:   64 << 20,
			FetchTimeoutMs:  30000,
			ResampleQuality: 4,
		},
		Trainers: TrainersConfig{
			EQ:          MatchConfig{SuccessScore: 90},
			Compression: MatchConfig{SuccessScore: 95},
			Gain:        GainConfig{OptionCount: 4, MinSeparationDB: 1, MaxAttempts: 1000},
			Frequency:   FrequencyConfig{ToleranceOctaves: 1.0 / 3},
		},
	}
}

// Source resolves nameOrURL against the configured sources. A configured
// name yields its URL; anything else is returned unchanged and treated as a
// URL or path.
func (c *Config) Source(nameOrURL string) string {
	for _, s := range c.Sources {
		if s.Name == nameOrURL {
			return s.URL
		}
	}
	return nameOrURL
}

// SuggestSource returns the configured source name closest to name, for
// "did you mean" hints when name is neither a source nor a usable URL.
func (c *Config) SuggestSource(name string) (string, bool) {
	var (
		best  string
		score float64
	)
	want := strings.ToLower(name)
	for _, s := range c.Sources {
		if sc := matchr.JaroWinkler(want, strings.ToLower(s.Name), false); sc > score {
			best, score = s.Name, sc
		}
	}
	if score < suggestThreshold {
		return "", false
	}
	return best, true
}
