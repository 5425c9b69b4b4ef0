package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/earmatch/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if d.RestartRequired {
		t.Error("log level change should not require a restart")
	}
}

func TestDiff_Thresholds(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Trainers.EQ.SuccessScore = 80
	new.Trainers.Frequency.ToleranceOctaves = 0.5

	d := config.Diff(old, new)
	if !d.ThresholdsChanged {
		t.Error("expected ThresholdsChanged=true")
	}
	if d.GainOptionsChanged {
		t.Error("expected GainOptionsChanged=false")
	}
	if d.Trainers.EQ.SuccessScore != 80 {
		t.Errorf("diff carries eq score %d, want 80", d.Trainers.EQ.SuccessScore)
	}
}

func TestDiff_GainOptions(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Trainers.Gain.OptionCount = 5

	if d := config.Diff(old, new); !d.GainOptionsChanged || d.ThresholdsChanged {
		t.Errorf("gain diff = %+v", d)
	}
}

func TestDiff_Crossfade(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Audio.CrossfadeMs = 40

	d := config.Diff(old, new)
	if !d.CrossfadeChanged || d.NewCrossfadeMs != 40 {
		t.Errorf("crossfade diff = %+v", d)
	}
	if d.RestartRequired {
		t.Error("crossfade change should not require a restart")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = 44100 }},
		{"output", func(c *config.Config) { c.Audio.Output = config.OutputNone }},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"log file", func(c *config.Config) { c.Server.LogFile = "/tmp/x.log" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			new := config.Default()
			tt.mutate(new)
			if d := config.Diff(config.Default(), new); !d.RestartRequired {
				t.Error("expected RestartRequired=true")
			}
		})
	}
}

func TestDiff_Sources(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Sources = []config.SourceConfig{
		{Name: "drums", URL: "drums.wav"},
		{Name: "bass", URL: "bass.wav"},
	}
	new := config.Default()
	new.Sources = []config.SourceConfig{
		{Name: "drums", URL: "drums-v2.wav"},
		{Name: "keys", URL: "keys.wav"},
	}

	d := config.Diff(old, new)
	if !slices.Equal(d.SourcesRemoved, []string{"drums", "bass"}) {
		t.Errorf("removed = %v", d.SourcesRemoved)
	}
	if !slices.Equal(d.SourcesAdded, []string{"drums", "keys"}) {
		t.Errorf("added = %v", d.SourcesAdded)
	}
}
