package challenge_test

import (
	"math"
	"sync"
	"testing"

	"github.com/MrWong99/earmatch/pkg/challenge"
	"github.com/MrWong99/earmatch/pkg/types"
)

func TestEQ_Ranges(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(1)
	seen := map[types.FilterType]bool{}
	for range 2000 {
		f := g.EQ()
		seen[f.Type] = true
		if f.Frequency < 20 || f.Frequency > 20000 {
			t.Fatalf("frequency %v out of range", f.Frequency)
		}
		if f.Q < challenge.EQMinQ || f.Q > challenge.EQMaxQ {
			t.Fatalf("q %v out of range", f.Q)
		}
		if f.Type == types.Peaking {
			if math.Abs(f.Gain) > challenge.EQMaxGain {
				t.Fatalf("gain %v out of range", f.Gain)
			}
		} else if f.Gain != 0 {
			t.Fatalf("pass filter carries gain %v", f.Gain)
		}
	}
	for _, ft := range types.FilterTypes {
		if !seen[ft] {
			t.Errorf("filter type %q never drawn", ft)
		}
	}
}

func TestEQ_FrequencyLogUniform(t *testing.T) {
	t.Parallel()

	// Half of the log range lies below ~632 Hz.
	g := challenge.NewSeeded(7)
	const n = 4000
	mid := math.Sqrt(20 * 20000)
	below := 0
	for range n {
		if g.EQ().Frequency < mid {
			below++
		}
	}
	if frac := float64(below) / n; frac < 0.45 || frac > 0.55 {
		t.Errorf("fraction below geometric midpoint = %.3f, want ~0.5", frac)
	}
}

func TestFrequencySpot_AlwaysAudibleBoost(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(2)
	for range 1000 {
		f := g.FrequencySpot()
		if f.Type != types.Peaking {
			t.Fatalf("type = %q, want peaking", f.Type)
		}
		if f.Gain < challenge.SpotMinGain || f.Gain > challenge.SpotMaxGain {
			t.Fatalf("gain %v out of [4,10]", f.Gain)
		}
		if f.Q < challenge.SpotMinQ || f.Q > challenge.SpotMaxQ {
			t.Fatalf("q %v out of [0.7,2.5]", f.Q)
		}
	}
}

func TestCompression_Ranges(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(3)
	for range 1000 {
		c := g.Compression()
		switch {
		case c.Threshold < -48 || c.Threshold > -20:
			t.Fatalf("threshold %v", c.Threshold)
		case c.Ratio < 1.5 || c.Ratio > 8:
			t.Fatalf("ratio %v", c.Ratio)
		case c.Attack < 0.008 || c.Attack > 0.078:
			t.Fatalf("attack %v", c.Attack)
		case c.Release < 0.08 || c.Release > 0.73:
			t.Fatalf("release %v", c.Release)
		case c.Makeup < -3 || c.Makeup > 6:
			t.Fatalf("makeup %v", c.Makeup)
		}
	}
}

func inDomain(d types.GainDelta) bool {
	m := math.Abs(float64(d))
	return m >= types.MinGainDelta && m <= types.MaxGainDelta
}

func TestGainDelta_Domain(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(4)
	pos, neg := 0, 0
	for range 2000 {
		d := g.GainDelta()
		if !inDomain(d) {
			t.Fatalf("delta %v outside [-10,-0.5]∪[0.5,10]", d)
		}
		if d > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		t.Errorf("sign never varied: pos=%d neg=%d", pos, neg)
	}
}

func checkChallenge(t *testing.T, c challenge.GainChallenge, count int, sep float64) {
	t.Helper()

	if len(c.Options) != count {
		t.Fatalf("len(Options) = %d, want %d", len(c.Options), count)
	}
	hits := 0
	for i, a := range c.Options {
		if a == c.Delta {
			hits++
		}
		if !inDomain(a) {
			t.Errorf("option %v outside domain", a)
		}
		for _, b := range c.Options[i+1:] {
			if math.Abs(float64(a-b)) < sep {
				t.Errorf("options %v and %v closer than %v dB", a, b, sep)
			}
		}
	}
	if hits != 1 {
		t.Errorf("true delta appears %d times, want 1", hits)
	}
	if idx := c.Answer(); idx < 0 || c.Options[idx] != c.Delta {
		t.Errorf("Answer() = %d does not point at the delta", idx)
	}
}

func TestGainDeltaChallenge_Properties(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(5)
	for range 500 {
		checkChallenge(t, g.GainDeltaChallenge(), challenge.OptionCount, challenge.MinSeparation)
	}
}

func TestGainDeltaChallenge_GridFallback(t *testing.T) {
	t.Parallel()

	// A single attempt almost never fills three distractors, so the grid
	// must finish the job.
	g := challenge.NewSeeded(6)
	for range 200 {
		c := g.GainDeltaChallengeWith(challenge.OptionsConfig{MaxAttempts: 1})
		checkChallenge(t, c, challenge.OptionCount, challenge.MinSeparation)
	}
}

func TestGainDeltaChallenge_WideSeparation(t *testing.T) {
	t.Parallel()

	// Six options three dB apart may not fit around every draw; the
	// generator must still terminate with a valid, possibly shorter set.
	g := challenge.NewSeeded(8)
	cfg := challenge.OptionsConfig{Count: 6, MinSeparation: 3, MaxAttempts: 50}
	for range 200 {
		c := g.GainDeltaChallengeWith(cfg)
		if len(c.Options) == 0 || len(c.Options) > 6 {
			t.Fatalf("len(Options) = %d, want 1..6", len(c.Options))
		}
		checkChallenge(t, c, len(c.Options), 3)
	}
}

func TestGainDeltaChallenge_Shuffled(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(9)
	positions := map[int]int{}
	for range 400 {
		positions[g.GainDeltaChallenge().Answer()]++
	}
	for i := range challenge.OptionCount {
		if positions[i] == 0 {
			t.Errorf("true delta never landed at index %d", i)
		}
	}
}

func TestSeededIsDeterministic(t *testing.T) {
	t.Parallel()

	a, b := challenge.NewSeeded(42), challenge.NewSeeded(42)
	for range 50 {
		if x, y := a.EQ(), b.EQ(); x != y {
			t.Fatalf("seeded generators diverged: %+v vs %+v", x, y)
		}
	}
}

func TestGenerator_ConcurrentDraws(t *testing.T) {
	t.Parallel()

	g := challenge.NewSeeded(3)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if c := g.GainDeltaChallenge(); len(c.Options) != 4 {
					t.Errorf("options = %v", c.Options)
					return
				}
				_ = g.EQ()
			}
		}()
	}
	wg.Wait()
}
