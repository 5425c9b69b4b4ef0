package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ThresholdsChanged is true if a success score or the frequency
	// tolerance changed. The new values are in Trainers.
	ThresholdsChanged bool

	// GainOptionsChanged is true if distractor generation changed. It takes
	// effect from the next round.
	GainOptionsChanged bool

	// CrossfadeChanged is true if the monitor time constant changed. It takes
	// effect from the next graph.
	CrossfadeChanged bool
	NewCrossfadeMs   int

	// SourcesAdded and SourcesRemoved list source names by their change.
	// A source whose URL changed appears in both.
	SourcesAdded   []string
	SourcesRemoved []string

	// RestartRequired is true if a field outside the hot-reloadable set
	// changed.
	RestartRequired bool

	Trainers TrainersConfig
}

// Changed reports whether d holds any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ThresholdsChanged || d.GainOptionsChanged ||
		d.CrossfadeChanged || len(d.SourcesAdded) > 0 || len(d.SourcesRemoved) > 0 ||
		d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{Trainers: new.Trainers}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ot, nt := old.Trainers, new.Trainers
	if ot.EQ != nt.EQ || ot.Compression != nt.Compression || ot.Frequency != nt.Frequency {
		d.ThresholdsChanged = true
	}
	if ot.Gain != nt.Gain {
		d.GainOptionsChanged = true
	}

	if old.Audio.CrossfadeMs != new.Audio.CrossfadeMs {
		d.CrossfadeChanged = true
		d.NewCrossfadeMs = new.Audio.CrossfadeMs
	}

	// Everything in audio except the crossfade needs a new output or loader.
	oa, na := old.Audio, new.Audio
	oa.CrossfadeMs, na.CrossfadeMs = 0, 0
	if oa != na || old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = true
	}

	// Sources keyed by name.
	oldSrc := make(map[string]string, len(old.Sources))
	for _, s := range old.Sources {
		oldSrc[s.Name] = s.URL
	}
	newSrc := make(map[string]string, len(new.Sources))
	for _, s := range new.Sources {
		newSrc[s.Name] = s.URL
	}
	for _, s := range old.Sources {
		if url, ok := newSrc[s.Name]; !ok || url != s.URL {
			d.SourcesRemoved = append(d.SourcesRemoved, s.Name)
		}
	}
	for _, s := range new.Sources {
		if url, ok := oldSrc[s.Name]; !ok || url != s.URL {
			d.SourcesAdded = append(d.SourcesAdded, s.Name)
		}
	}

	return d
}
