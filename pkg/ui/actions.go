package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hmansour/chatbridge/internal/style"
)

// actionsModel is the Actions tab: a short list of one-shot maintenance
// actions with the output of the last one run.
type actionsModel struct {
	cursor int
	busy   bool
	output string
}

// actionDoneMsg carries the text outcome of an action.
type actionDoneMsg struct {
	output string
}

// sessionEndedMsg is emitted after the end-session action; the panel quits
// once it arrives.
type sessionEndedMsg struct {
	output string
}

var actionNames = []string{
	"Install Dependencies",
	"Check Tunnel Credentials",
	"End Session",
}

func initActionsModel() actionsModel {
	return actionsModel{}
}

func (m model) runAction(index int) tea.Cmd {
	deps := m.deps
	switch index {
	case 0:
		return func() tea.Msg {
			return actionDoneMsg{output: deps.Installer.Run(context.Background())}
		}
	case 1:
		return func() tea.Msg {
			return actionDoneMsg{output: deps.AuthCheck()}
		}
	case 2:
		// Stop first so the tunnel is gone before the process dies.
		return func() tea.Msg {
			stopResult := deps.Lifecycle.Stop()
			if err := deps.Terminate(); err != nil {
				return actionDoneMsg{output: fmt.Sprintf("%s Failed to end session: %v", stopResult, err)}
			}
			return sessionEndedMsg{output: "Session ended successfully."}
		}
	}
	return nil
}

func (m model) updateActions(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.actions.busy {
			return m, nil
		}
		switch msg.String() {
		case "up", "k":
			if m.actions.cursor > 0 {
				m.actions.cursor--
			}
		case "down", "j":
			if m.actions.cursor < len(actionNames)-1 {
				m.actions.cursor++
			}
		case "enter":
			m.actions.busy = true
			return m, m.runAction(m.actions.cursor)
		}
	case actionDoneMsg:
		m.actions.busy = false
		m.actions.output = msg.output
	case sessionEndedMsg:
		m.actions.busy = false
		m.actions.output = msg.output
		return m, tea.Quit
	}
	return m, nil
}

func (m model) actionsView() string {
	var s string
	for i, name := range actionNames {
		cursor := style.NoCursorStyle.String()
		if i == m.actions.cursor {
			cursor = style.CursorStyle.String()
		}
		s += cursor + name + "\n"
	}

	if m.actions.busy {
		s += fmt.Sprintf("\n %s Working...\n", m.spinner.View())
	} else if m.actions.output != "" {
		s += "\n" + style.OutputStyle.Render(m.actions.output) + "\n"
	}

	s += "\n" + style.HelpStyle.Render("up/down: select • enter: run")
	return s
}
