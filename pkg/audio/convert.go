package audio

import "math"

// SilenceDB is the floor reported by [LinearToDB] for zero amplitude.
const SilenceDB = -120.0

// DBToLinear converts a level in dB to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear amplitude to dB, flooring at [SilenceDB].
func LinearToDB(a float64) float64 {
	a = math.Abs(a)
	if a <= 0 {
		return SilenceDB
	}
	return math.Max(SilenceDB, 20*math.Log10(a))
}

// Silence zeroes every frame.
func Silence(frames [][2]float64) {
	for i := range frames {
		frames[i] = [2]float64{}
	}
}

// PeakDB returns the absolute peak of frames in dBFS.
func PeakDB(frames [][2]float64) float64 {
	var peak float64
	for _, f := range frames {
		peak = math.Max(peak, math.Max(math.Abs(f[0]), math.Abs(f[1])))
	}
	return LinearToDB(peak)
}
