package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/earmatch/internal/engine"
)

// stateMsg carries one engine snapshot. ch identifies the subscription so
// snapshots from a replaced trainer are dropped.
type stateMsg struct {
	ch    <-chan engine.State
	state engine.State
	ok    bool
}

// switchedMsg reports that the session moved to a new trainer.
type switchedMsg struct {
	err error
}

// waitForState creates a command that waits for the next engine snapshot.
func waitForState(ch <-chan engine.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		return stateMsg{ch: ch, state: st, ok: ok}
	}
}
