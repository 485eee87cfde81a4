package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hmansour/chatbridge/internal/app"
	"github.com/hmansour/chatbridge/internal/style"
)

// serverModel is the Server Status tab: current lifecycle status plus the
// outcome of the last toggle.
type serverModel struct {
	busy       bool
	lastResult string
}

// serverToggledMsg reports the outcome of a start or stop.
type serverToggledMsg struct {
	result string
}

func initServerModel() serverModel {
	return serverModel{}
}

// toggleServer starts the server when stopped and stops it when running.
// The lifecycle call blocks on the network, so it runs as a command, not
// inside Update.
func (m model) toggleServer() tea.Cmd {
	lifecycle := m.deps.Lifecycle
	return func() tea.Msg {
		if lifecycle.State() == app.Running {
			return serverToggledMsg{result: lifecycle.Stop()}
		}
		return serverToggledMsg{result: lifecycle.Start(context.Background())}
	}
}

func (m model) updateServer(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.server.busy {
			return m, nil
		}
		if msg.String() == "enter" || msg.String() == "s" {
			m.server.busy = true
			return m, m.toggleServer()
		}
	case serverToggledMsg:
		m.server.busy = false
		m.server.lastResult = msg.result
	}
	return m, nil
}

func (m model) serverView() string {
	status := m.deps.Lifecycle.Status()
	if m.deps.Lifecycle.State() == app.Running {
		status = style.OKStyle.Render(status)
	}

	s := style.StatusBoxStyle.Render(status) + "\n"

	if m.server.busy {
		s += fmt.Sprintf("\n %s Working...\n", m.spinner.View())
	} else if m.server.lastResult != "" {
		s += "\n" + style.OutputStyle.Render(m.server.lastResult) + "\n"
	}

	label := "start"
	if m.deps.Lifecycle.State() == app.Running {
		label = "stop"
	}
	s += "\n" + style.HelpStyle.Render(fmt.Sprintf("enter: %s server", label))
	return s
}
