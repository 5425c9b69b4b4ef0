package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/earmatch/pkg/audio"
)

func TestDBRoundTrip(t *testing.T) {
	for _, db := range []float64{-60, -12, -6, 0, 3, 10} {
		got := audio.LinearToDB(audio.DBToLinear(db))
		if math.Abs(got-db) > 1e-9 {
			t.Errorf("round trip %v dB = %v", db, got)
		}
	}
}

func TestDBToLinear_KnownValues(t *testing.T) {
	if got := audio.DBToLinear(0); got != 1 {
		t.Errorf("DBToLinear(0) = %v, want 1", got)
	}
	if got := audio.DBToLinear(20); math.Abs(got-10) > 1e-12 {
		t.Errorf("DBToLinear(20) = %v, want 10", got)
	}
}

func TestLinearToDB_Silence(t *testing.T) {
	if got := audio.LinearToDB(0); got != audio.SilenceDB {
		t.Errorf("LinearToDB(0) = %v, want %v", got, audio.SilenceDB)
	}
}

func TestPeakDB(t *testing.T) {
	frames := [][2]float64{{0.1, -0.5}, {0.25, 0.2}}
	if got, want := audio.PeakDB(frames), audio.LinearToDB(0.5); got != want {
		t.Errorf("PeakDB = %v, want %v", got, want)
	}
	audio.Silence(frames)
	if got := audio.PeakDB(frames); got != audio.SilenceDB {
		t.Errorf("PeakDB after Silence = %v, want %v", got, audio.SilenceDB)
	}
}

func TestStatusString(t *testing.T) {
	tests := map[audio.Status]string{
		audio.StatusIdle:    "idle",
		audio.StatusLoading: "loading",
		audio.StatusReady:   "ready",
		audio.StatusError:   "error",
		audio.Status(42):    "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
