package tui

import (
	"fmt"
	"math"
	"slices"

	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/pkg/types"
)

// param is one adjustable field of a matching trainer. adjust applies dir
// (+1 or -1) to the trainer's current parameters.
type param struct {
	name   string
	value  func(t trainer.Trainer) string
	adjust func(t trainer.Trainer, dir int)
}

// semitone is one twelfth of an octave.
var semitone = math.Pow(2, 1.0/12)

var eqParams = []param{
	{
		name:  "type",
		value: func(t trainer.Trainer) string { return string(eqUser(t).Type) },
		adjust: func(t trainer.Trainer, dir int) {
			eq := t.(*trainer.EQMatch)
			i := slices.Index(types.FilterTypes, eq.User().Type)
			n := len(types.FilterTypes)
			eq.SetType(types.FilterTypes[((i+dir)%n+n)%n])
		},
	},
	{
		name:  "frequency",
		value: func(t trainer.Trainer) string { return formatHz(eqUser(t).Frequency) },
		adjust: func(t trainer.Trainer, dir int) {
			eq := t.(*trainer.EQMatch)
			eq.SetFrequency(eq.User().Frequency * math.Pow(semitone, float64(dir)))
		},
	},
	{
		name:  "gain",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%+.1f dB", eqUser(t).Gain) },
		adjust: func(t trainer.Trainer, dir int) {
			eq := t.(*trainer.EQMatch)
			eq.SetGain(eq.User().Gain + 0.5*float64(dir))
		},
	},
	{
		name:  "q",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%.2f", eqUser(t).Q) },
		adjust: func(t trainer.Trainer, dir int) {
			eq := t.(*trainer.EQMatch)
			eq.SetQ(eq.User().Q * math.Pow(2, float64(dir)/6))
		},
	},
}

var compressionParams = []param{
	{
		name:  "threshold",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%.1f dBFS", compUser(t).Threshold) },
		adjust: func(t trainer.Trainer, dir int) {
			c := t.(*trainer.CompressionMatch)
			c.SetThreshold(c.User().Threshold + float64(dir))
		},
	},
	{
		name:  "ratio",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%.1f:1", compUser(t).Ratio) },
		adjust: func(t trainer.Trainer, dir int) {
			c := t.(*trainer.CompressionMatch)
			c.SetRatio(c.User().Ratio + 0.5*float64(dir))
		},
	},
	{
		name:  "attack",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%.1f ms", compUser(t).Attack*1000) },
		adjust: func(t trainer.Trainer, dir int) {
			c := t.(*trainer.CompressionMatch)
			c.SetAttackMs(c.User().Attack * 1000 * math.Pow(1.25, float64(dir)))
		},
	},
	{
		name:  "release",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%.0f ms", compUser(t).Release*1000) },
		adjust: func(t trainer.Trainer, dir int) {
			c := t.(*trainer.CompressionMatch)
			c.SetReleaseMs(c.User().Release * 1000 * math.Pow(1.25, float64(dir)))
		},
	},
	{
		name:  "makeup",
		value: func(t trainer.Trainer) string { return fmt.Sprintf("%+.1f dB", compUser(t).Makeup) },
		adjust: func(t trainer.Trainer, dir int) {
			c := t.(*trainer.CompressionMatch)
			c.SetMakeup(c.User().Makeup + 0.5*float64(dir))
		},
	},
}

// paramsFor returns the adjustable fields of mode, or nil for the guessing
// trainers.
func paramsFor(mode trainer.Mode) []param {
	switch mode {
	case trainer.ModeEQ:
		return eqParams
	case trainer.ModeCompression:
		return compressionParams
	}
	return nil
}

func eqUser(t trainer.Trainer) types.FilterSettings {
	return t.(*trainer.EQMatch).User()
}

func compUser(t trainer.Trainer) types.CompressionSettings {
	return t.(*trainer.CompressionMatch).User()
}

func formatHz(hz float64) string {
	if hz >= 1000 {
		return fmt.Sprintf("%.2f kHz", hz/1000)
	}
	return fmt.Sprintf("%.0f Hz", hz)
}
