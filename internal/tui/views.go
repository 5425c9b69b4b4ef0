package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/pkg/audio"
	"github.com/MrWong99/earmatch/pkg/curve"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000"))
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAAA"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#888888")).
			Padding(0, 1).
			Width(72)
)

// sparkBlocks are the eight levels of a text sparkline, lowest first.
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

const helpLine = "space play/stop · tab monitor · l loop · n new · r reveal · m mode · q quit"

// renderView renders the whole screen.
func renderView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")
	b.WriteString(boxStyle.Render(renderTransport(m)))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(renderRound(m)))
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(helpLine))
	return b.String()
}

// renderHeader renders the title and round counters.
func renderHeader(m Model) string {
	title := titleStyle.Render("earmatch · " + string(m.tr.Mode()))
	st := m.tr.Stats()
	sub := dimStyle.Render(fmt.Sprintf("round %d · solved %d · streak %d (best %d)",
		st.Round, st.Solved, st.Streak, st.BestStreak))
	return title + "\n" + sub
}

// renderTransport renders the engine state line and the monitored chain.
func renderTransport(m Model) string {
	st := m.engine

	status := st.Status.String()
	switch st.Status {
	case audio.StatusReady:
		status = okStyle.Render(status)
	case audio.StatusError:
		status = errorStyle.Render(status)
	}

	play := "stopped"
	if st.Playing {
		play = okStyle.Render("playing")
	}
	loop := "off"
	if st.Looping {
		loop = "on"
	}

	var chains []string
	for _, c := range m.tr.Chains() {
		if c == st.Monitor {
			c = selectedStyle.Render("[" + c + "]")
		}
		chains = append(chains, c)
	}

	source := st.URL
	if source == "" {
		source = m.sessions.Info().Source
	}
	return fmt.Sprintf("source %s\n%s · %s · loop %s\nmonitor %s",
		source, status, play, loop, strings.Join(chains, " "))
}

// renderRound renders the mode-specific round panel.
func renderRound(m Model) string {
	switch t := m.tr.(type) {
	case *trainer.EQMatch:
		s := t.Snapshot()
		return renderMatch(m, s.Score, s.Success, s.Revealed, s.Target.String(),
			eqSpark(s.UserCurve, s.TargetCurve))
	case *trainer.CompressionMatch:
		s := t.Snapshot()
		target := s.Target.String()
		if s.Revealed {
			target += fmt.Sprintf(" (drift %.1f dB)", s.Drift)
		}
		return renderMatch(m, s.Score, s.Success, s.Revealed, target,
			compressionSpark(s.UserCurve, s.TargetCurve))
	case *trainer.FrequencySpot:
		return renderFrequency(m, t.Snapshot())
	case *trainer.GainDelta:
		return renderGain(m, t.Snapshot())
	}
	return ""
}

// renderMatch renders the parameter list, score and curves of a matching
// trainer.
func renderMatch(m Model, score int, success, revealed bool, target, curves string) string {
	var b strings.Builder
	for i, p := range paramsFor(m.tr.Mode()) {
		line := fmt.Sprintf("  %-10s %s", p.name, p.value(m.tr))
		if i == m.selected {
			line = selectedStyle.Render("› " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	scoreText := fmt.Sprintf("score %d", score)
	if success {
		scoreText = okStyle.Render(scoreText + " · matched!")
	}
	b.WriteString("\n" + scoreText + "\n")
	if revealed {
		b.WriteString("target " + target + "\n")
	}
	b.WriteString(curves)
	b.WriteString(dimStyle.Render("j/k select · ←/→ or [/] adjust"))
	return b.String()
}

func renderFrequency(m Model, s trainer.FrequencySnapshot) string {
	var b strings.Builder
	b.WriteString("guess " + selectedStyle.Render(formatHz(m.guess)) + "\n")
	if s.Guessed {
		verdict := errorStyle.Render("miss")
		if s.Result.Correct {
			verdict = okStyle.Render("correct")
		}
		fmt.Fprintf(&b, "%s · target %s · score %d\n", verdict, formatHz(s.Result.Target), s.Result.Score)
	} else if s.Revealed {
		b.WriteString("target " + formatHz(s.Target.Frequency) + "\n")
	}
	if s.Revealed {
		b.WriteString(eqSpark(nil, s.TargetCurve))
	}
	b.WriteString(dimStyle.Render("←/→ move a semitone · enter guess"))
	return b.String()
}

func renderGain(m Model, s trainer.GainSnapshot) string {
	var b strings.Builder
	for i, o := range s.Options {
		line := fmt.Sprintf("  %d) %s", i+1, o)
		switch {
		case s.Revealed && o == s.Delta:
			line = okStyle.Render(line + " ✓")
		case s.Answered && i == s.Result.Choice:
			line = errorStyle.Render(line + " ✗")
		case i == m.choice:
			line = selectedStyle.Render("› " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("1-4 or ←/→ + enter answer"))
	return b.String()
}

// eqSpark renders the user and target EQ curves on a shared dB scale.
func eqSpark(user, target []curve.Point) string {
	lo, hi := bounds(-1, 1, user, target)
	return sparkLines(lo, hi, user, target)
}

// compressionSpark renders compressor transfer curves over the probe range.
func compressionSpark(user, target []curve.Point) string {
	lo, hi := bounds(curve.CompressionMinDB, curve.CompressionMaxDB, user, target)
	return sparkLines(lo, hi, user, target)
}

func sparkLines(lo, hi float64, user, target []curve.Point) string {
	var b strings.Builder
	if len(user) > 0 {
		b.WriteString("you    " + userStyle.Render(sparkline(user, lo, hi)) + "\n")
	}
	if len(target) > 0 {
		b.WriteString("target " + titleStyle.Render(sparkline(target, lo, hi)) + "\n")
	}
	return b.String()
}

// bounds returns the Y range covering every curve, at least [lo, hi].
func bounds(lo, hi float64, curves ...[]curve.Point) (float64, float64) {
	for _, c := range curves {
		for _, p := range c {
			lo = min(lo, p.Y)
			hi = max(hi, p.Y)
		}
	}
	return lo, hi
}

// sparkline maps each point's Y onto one of eight block heights.
func sparkline(pts []curve.Point, lo, hi float64) string {
	top := len(sparkBlocks) - 1
	out := make([]rune, len(pts))
	for i, p := range pts {
		level := 0
		if hi > lo {
			level = int((p.Y - lo) / (hi - lo) * float64(top))
		}
		out[i] = sparkBlocks[min(max(level, 0), top)]
	}
	return string(out)
}
