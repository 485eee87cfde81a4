package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hmansour/chatbridge/internal/app"
	"github.com/hmansour/chatbridge/internal/install"
	"github.com/hmansour/chatbridge/internal/style"
)

type tab int

const (
	serverTab tab = iota
	actionsTab
)

// Deps are the collaborators the control panel drives. The panel holds no
// server state of its own; it re-reads the lifecycle on every interaction.
type Deps struct {
	Lifecycle *app.Lifecycle
	Installer install.Installer
	// AuthCheck verifies the tunnel credential resolves and reports the
	// outcome as text.
	AuthCheck func() string
	// Terminate signals the current process to exit.
	Terminate func() error
}

type model struct {
	deps    Deps
	tab     tab
	spinner spinner.Model

	server  serverModel
	actions actionsModel
}

// InitialModel builds the control panel model.
func InitialModel(deps Deps) tea.Model {
	return model{
		deps:    deps,
		tab:     serverTab,
		spinner: style.NewSpinner(),
		server:  initServerModel(),
		actions: initActionsModel(),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab", "right", "left":
			if m.tab == serverTab {
				m.tab = actionsTab
			} else {
				m.tab = serverTab
			}
			return m, nil
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	switch m.tab {
	case serverTab:
		return m.updateServer(msg)
	case actionsTab:
		return m.updateActions(msg)
	}
	return m, nil
}

func (m model) View() string {
	s := style.TitleStyle.Render("Chatbridge Connector") + "\n\n"
	s += m.tabBar() + "\n\n"

	switch m.tab {
	case serverTab:
		s += m.serverView()
	case actionsTab:
		s += m.actionsView()
	}

	s += "\n" + style.HelpStyle.Render("tab: switch panel • q: quit")
	return s
}

func (m model) tabBar() string {
	server := style.InactiveTabStyle.Render("Server Status")
	actions := style.InactiveTabStyle.Render("Actions")
	switch m.tab {
	case serverTab:
		server = style.ActiveTabStyle.Render("Server Status")
	case actionsTab:
		actions = style.ActiveTabStyle.Render("Actions")
	}
	return server + " " + actions
}
