package curve_test

import (
	"math"
	"testing"

	"github.com/MrWong99/earmatch/pkg/curve"
	"github.com/MrWong99/earmatch/pkg/types"
)

const eps = 1e-9

func TestEQ_PeakingCentreEqualsGain(t *testing.T) {
	t.Parallel()

	for _, gain := range []float64{-24, -9, -0.5, 0, 3, 6, 24} {
		for _, q := range []float64{0.1, 0.7, 1, 5, 18} {
			f := types.FilterSettings{Type: types.Peaking, Frequency: 1000, Gain: gain, Q: q}
			if got := curve.EQ(f, 1000); math.Abs(got-gain) > eps {
				t.Errorf("EQ(%+v, 1000) = %v, want %v", f, got, gain)
			}
		}
	}
}

func TestEQ_Pure(t *testing.T) {
	t.Parallel()

	f := types.FilterSettings{Type: types.Peaking, Frequency: 2500, Gain: 4.5, Q: 2.2}
	first := curve.EQ(f, 3100)
	for range 100 {
		if got := curve.EQ(f, 3100); got != first {
			t.Fatalf("EQ not deterministic: %v then %v", first, got)
		}
	}
}

func TestEQ_PeakingFallsOffSymmetrically(t *testing.T) {
	t.Parallel()

	f := types.FilterSettings{Type: types.Peaking, Frequency: 1000, Gain: 6, Q: 1}
	up := curve.EQ(f, 2000)
	down := curve.EQ(f, 500)
	if math.Abs(up-down) > eps {
		t.Errorf("octave above = %v, octave below = %v; want symmetric", up, down)
	}
	if up >= 6 || up <= 0 {
		t.Errorf("octave away = %v, want in (0, 6)", up)
	}
}

func TestEQ_PeakWidthFloor(t *testing.T) {
	t.Parallel()

	if got := curve.PeakWidth(18); got != curve.MinWidthOctaves {
		t.Errorf("PeakWidth(18) = %v, want floor %v", got, curve.MinWidthOctaves)
	}
	if got, want := curve.PeakWidth(1), 1/1.8; math.Abs(got-want) > eps {
		t.Errorf("PeakWidth(1) = %v, want %v", got, want)
	}
}

func TestEQ_PassFilters(t *testing.T) {
	t.Parallel()

	hp := types.FilterSettings{Type: types.Highpass, Frequency: 200, Q: 1}
	if got := curve.EQ(hp, 20000); got < -0.01 {
		t.Errorf("highpass far above corner = %v, want ~0", got)
	}
	if got := curve.EQ(hp, 20); got > -11.9 {
		t.Errorf("highpass far below corner = %v, want ~-12", got)
	}
	if got := curve.EQ(hp, 200); math.Abs(got+6) > eps {
		t.Errorf("highpass at corner = %v, want -6", got)
	}

	lp := types.FilterSettings{Type: types.Lowpass, Frequency: 2000, Q: 1}
	if got := curve.EQ(lp, 20); got < -0.01 {
		t.Errorf("lowpass far below corner = %v, want ~0", got)
	}
	if got := curve.EQ(lp, 20000); got > -11.9 {
		t.Errorf("lowpass far above corner = %v, want ~-12", got)
	}
}

func TestEQCurve_ClampedAndLogSpaced(t *testing.T) {
	t.Parallel()

	f := types.FilterSettings{Type: types.Peaking, Frequency: 1000, Gain: 24, Q: 1}
	pts := curve.EQCurve(f, 64)
	if len(pts) != 64 {
		t.Fatalf("len = %d, want 64", len(pts))
	}
	if pts[0].X != 20 || pts[63].X != 20000 {
		t.Errorf("endpoints = %v..%v, want 20..20000", pts[0].X, pts[63].X)
	}
	for i, p := range pts {
		if p.Y > curve.DisplayMaxDB || p.Y < curve.DisplayMinDB {
			t.Errorf("pts[%d].Y = %v outside display window", i, p.Y)
		}
	}
	ratio := pts[1].X / pts[0].X
	if got := pts[33].X / pts[32].X; math.Abs(got-ratio) > 1e-9 {
		t.Errorf("spacing ratio drifted: %v vs %v", got, ratio)
	}
}

func TestCompressionLevel(t *testing.T) {
	t.Parallel()

	c := types.CompressionSettings{Threshold: -20, Ratio: 4, Attack: 0.01, Release: 0.1, Makeup: 3}
	tests := []struct {
		in, want float64
	}{
		{-40, -37},
		{-20, -17},
		{0, -20 + 20.0/4 + 3},
	}
	for _, tc := range tests {
		if got := curve.CompressionLevel(c, tc.in); math.Abs(got-tc.want) > eps {
			t.Errorf("CompressionLevel(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCompressionCurve_Range(t *testing.T) {
	t.Parallel()

	pts := curve.CompressionCurve(types.DefaultCompression(), curve.DriftPoints)
	if len(pts) != curve.DriftPoints {
		t.Fatalf("len = %d, want %d", len(pts), curve.DriftPoints)
	}
	if pts[0].X != -60 || pts[len(pts)-1].X != 0 {
		t.Errorf("input range %v..%v, want -60..0", pts[0].X, pts[len(pts)-1].X)
	}
	if step := pts[1].X - pts[0].X; math.Abs(step-2) > eps {
		t.Errorf("step = %v, want 2", step)
	}
}

func TestDrift(t *testing.T) {
	t.Parallel()

	a := types.DefaultCompression()
	if got := curve.Drift(a, a, 31); got != 0 {
		t.Errorf("Drift(a, a) = %v, want 0", got)
	}

	b := a.WithMakeup(a.Makeup + 2)
	if got := curve.Drift(a, b, 31); math.Abs(got-2) > eps {
		t.Errorf("Drift with +2 dB makeup = %v, want 2", got)
	}
	if got := curve.Drift(a, b, 0); got != 0 {
		t.Errorf("Drift with n=0 = %v, want 0", got)
	}
}

func TestLinSpaceEdges(t *testing.T) {
	t.Parallel()

	if got := curve.LinSpace(0, 1, 0); got != nil {
		t.Errorf("LinSpace n=0 = %v, want nil", got)
	}
	if got := curve.LinSpace(5, 9, 1); len(got) != 1 || got[0] != 5 {
		t.Errorf("LinSpace n=1 = %v, want [5]", got)
	}
}
