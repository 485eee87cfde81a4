package ui

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmansour/chatbridge/internal/app"
	"github.com/hmansour/chatbridge/internal/install"
)

type stubHandle struct{ url string }

func (h *stubHandle) URL() string  { return h.url }
func (h *stubHandle) Close() error { return nil }

type stubDialer struct{}

func (stubDialer) Open(ctx context.Context) (app.Handle, error) {
	return &stubHandle{url: "http://abc123.relay.local:8040"}, nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	return Deps{
		Lifecycle: app.NewLifecycle(addr, handler, stubDialer{}, nil),
		Installer: install.Installer{Command: []string{"true"}},
		AuthCheck: func() string { return "Tunnel credentials OK." },
		Terminate: func() error { return nil },
	}
}

// run applies a message and, when Update returns a command, executes it and
// feeds the resulting message back, like the bubbletea runtime would.
func run(t *testing.T, m tea.Model, msg tea.Msg) tea.Model {
	t.Helper()
	m, cmd := m.Update(msg)
	for cmd != nil {
		next := cmd()
		if next == nil {
			break
		}
		if _, quitting := next.(tea.QuitMsg); quitting {
			break
		}
		m, cmd = m.Update(next)
	}
	return m
}

func enter() tea.Msg { return tea.KeyMsg{Type: tea.KeyEnter} }

func TestPanel_ToggleStartsAndStopsServer(t *testing.T) {
	deps := testDeps(t)
	var m tea.Model = InitialModel(deps)

	m = run(t, m, enter())
	assert.Equal(t, app.Running, deps.Lifecycle.State())
	assert.Contains(t, m.View(), "Server started at http://abc123.relay.local:8040")
	assert.Contains(t, m.View(), "Server is running at http://abc123.relay.local:8040")

	m = run(t, m, enter())
	assert.Equal(t, app.Stopped, deps.Lifecycle.State())
	assert.Contains(t, m.View(), "Server stopped successfully.")
	assert.Contains(t, m.View(), "Server is not running.")
}

func TestPanel_TabSwitch(t *testing.T) {
	deps := testDeps(t)
	var m tea.Model = InitialModel(deps)

	assert.Contains(t, m.View(), "enter: start server")

	m = run(t, m, tea.KeyMsg{Type: tea.KeyTab})
	view := m.View()
	assert.Contains(t, view, "Install Dependencies")
	assert.Contains(t, view, "Check Tunnel Credentials")
	assert.Contains(t, view, "End Session")
}

func TestPanel_InstallAction(t *testing.T) {
	deps := testDeps(t)
	var m tea.Model = InitialModel(deps)

	m = run(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = run(t, m, enter())
	assert.Contains(t, m.View(), "Dependencies installed successfully.")
}

func TestPanel_AuthCheckAction(t *testing.T) {
	deps := testDeps(t)
	var m tea.Model = InitialModel(deps)

	m = run(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = run(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = run(t, m, enter())
	assert.Contains(t, m.View(), "Tunnel credentials OK.")
}

func TestPanel_EndSessionStopsServerAndTerminates(t *testing.T) {
	deps := testDeps(t)
	terminated := false
	deps.Terminate = func() error { terminated = true; return nil }

	var m tea.Model = InitialModel(deps)

	// Start the server first so End Session has something to stop.
	m = run(t, m, enter())
	require.Equal(t, app.Running, deps.Lifecycle.State())

	m = run(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = run(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m = run(t, m, tea.KeyMsg{Type: tea.KeyDown})

	m, cmd := m.Update(enter())
	require.NotNil(t, cmd)
	msg := cmd()
	ended, ok := msg.(sessionEndedMsg)
	require.True(t, ok)
	assert.Equal(t, "Session ended successfully.", ended.output)

	assert.True(t, terminated)
	assert.Equal(t, app.Stopped, deps.Lifecycle.State())

	// The panel quits once the session-ended message lands.
	_, cmd = m.Update(msg)
	require.NotNil(t, cmd)
	_, quitting := cmd().(tea.QuitMsg)
	assert.True(t, quitting)
}
