// Package tui provides the Bubbletea terminal user interface for earmatch.
package tui

import (
	"context"
	"fmt"
	"math"
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/earmatch/internal/app"
	"github.com/MrWong99/earmatch/internal/engine"
	"github.com/MrWong99/earmatch/internal/trainer"
	"github.com/MrWong99/earmatch/pkg/types"
)

// Sessions is the part of [app.SessionManager] the UI drives.
type Sessions interface {
	Trainer() trainer.Trainer
	Info() app.SessionInfo
	Switch(ctx context.Context, mode trainer.Mode) error
}

// DefaultGuess is where the frequency cursor starts each round.
const DefaultGuess = 1000.0

// Model is the Bubbletea model for a training session.
type Model struct {
	sessions Sessions
	tr       trainer.Trainer

	// Current engine subscription.
	states <-chan engine.State
	unsub  func()
	engine engine.State

	selected int     // index into paramsFor(mode)
	guess    float64 // frequency cursor in Hz
	choice   int     // gain option cursor
	status   string  // last action or error

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a UI model for the active session. sessions must have an
// active session.
func NewModel(sessions Sessions) Model {
	m := Model{sessions: sessions, guess: DefaultGuess}
	m.attach()
	return m
}

// attach subscribes to the active trainer's engine.
func (m *Model) attach() {
	if m.unsub != nil {
		m.unsub()
	}
	m.tr = m.sessions.Trainer()
	m.states, m.unsub = m.tr.Subscribe()
	m.engine = m.tr.EngineState()
	m.selected = 0
	m.guess = DefaultGuess
	m.choice = 0
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return waitForState(m.states)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case stateMsg:
		if msg.ch != m.states || !msg.ok {
			return m, nil
		}
		m.engine = msg.state
		return m, waitForState(m.states)

	case switchedMsg:
		if msg.err != nil {
			m.status = "switch failed: " + msg.err.Error()
			return m, nil
		}
		m.attach()
		m.status = "mode: " + string(m.tr.Mode())
		return m, waitForState(m.states)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mode := m.tr.Mode()
	params := paramsFor(mode)

	switch key := msg.String(); key {
	case "q", "ctrl+c":
		if m.unsub != nil {
			m.unsub()
		}
		return m, tea.Quit

	case " ":
		if m.engine.Playing {
			m.tr.Stop()
		} else {
			m.tr.Start()
		}

	case "tab":
		chains := m.tr.Chains()
		next := chains[(slices.Index(chains, m.engine.Monitor)+1)%len(chains)]
		if err := m.tr.Monitor(next); err != nil {
			m.status = err.Error()
		}

	case "l":
		m.tr.SetLooping(!m.engine.Looping)

	case "n":
		m.tr.NewRound()
		m.guess, m.choice = DefaultGuess, 0
		m.status = "new round"

	case "r":
		m.tr.Reveal()
		m.status = "revealed"

	case "m":
		next := trainer.Modes[(slices.Index(trainer.Modes, mode)+1)%len(trainer.Modes)]
		return m, m.switchTo(next)

	case "j", "down":
		if len(params) > 0 {
			m.selected = (m.selected + 1) % len(params)
		}

	case "k", "up":
		if len(params) > 0 {
			m.selected = (m.selected + len(params) - 1) % len(params)
		}

	case "left", "[", "right", "]":
		dir := 1
		if key == "left" || key == "[" {
			dir = -1
		}
		m.adjust(params, dir)

	case "enter":
		m.submit()

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if g, ok := m.tr.(*trainer.GainDelta); ok {
			m.choice = int(key[0] - '1')
			m.answer(g)
		}
	}

	return m, nil
}

// adjust moves the selected parameter, the frequency cursor or the gain
// option cursor by one step in dir.
func (m *Model) adjust(params []param, dir int) {
	switch t := m.tr.(type) {
	case *trainer.FrequencySpot:
		m.guess = types.Clamp(m.guess*math.Pow(semitone, float64(dir)), types.MinFrequency, types.MaxFrequency)
	case *trainer.GainDelta:
		n := len(t.Snapshot().Options)
		m.choice = (m.choice + dir + n) % n
	default:
		if len(params) > 0 {
			params[m.selected].adjust(m.tr, dir)
		}
	}
}

// submit answers the guessing trainers at the cursor.
func (m *Model) submit() {
	switch t := m.tr.(type) {
	case *trainer.FrequencySpot:
		r, err := t.Guess(m.guess)
		if err != nil {
			m.status = err.Error()
			return
		}
		verdict := "miss"
		if r.Correct {
			verdict = "correct"
		}
		m.status = fmt.Sprintf("%s: %s, %.2f octaves off, score %d", verdict, formatHz(r.Target), r.Octaves, r.Score)
	case *trainer.GainDelta:
		m.answer(t)
	}
}

func (m *Model) answer(g *trainer.GainDelta) {
	r, err := g.Answer(m.choice)
	if err != nil {
		m.status = err.Error()
		return
	}
	if r.Correct {
		m.status = "correct: " + r.Delta.String()
	} else {
		m.status = fmt.Sprintf("wrong: %s, it was %s", r.Chosen, r.Delta)
	}
}

// switchTo replaces the session's trainer off the update loop.
func (m Model) switchTo(mode trainer.Mode) tea.Cmd {
	sessions := m.sessions
	return func() tea.Msg {
		return switchedMsg{err: sessions.Switch(context.Background(), mode)}
	}
}

// View renders the UI
func (m Model) View() string {
	return renderView(m)
}
