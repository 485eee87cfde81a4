package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hmansour/chatbridge/pkg/tunnel"
)

// State is the lifecycle phase of the managed listener.
type State int

const (
	Stopped State = iota
	Running
)

// Handle is a live tunnel as the lifecycle sees it.
type Handle interface {
	URL() string
	Close() error
}

// Dialer opens a tunnel for the listener.
type Dialer interface {
	Open(ctx context.Context) (Handle, error)
}

// ClientDialer adapts *tunnel.Client to the Dialer interface.
type ClientDialer struct {
	Client *tunnel.Client
}

func (d ClientDialer) Open(ctx context.Context) (Handle, error) {
	t, err := d.Client.Open(ctx)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Lifecycle owns the listener goroutine and the public URL. All state
// transitions go through Start and Stop; both are idempotent and report
// a human-readable status string for the control panel.
type Lifecycle struct {
	listenAddr string
	handler    http.Handler
	dialer     Dialer
	logger     *slog.Logger

	mu        sync.Mutex
	state     State
	publicURL string
	tunnel    Handle
	server    *http.Server
	done      chan struct{}
}

// NewLifecycle creates a lifecycle manager for a listener serving handler
// on listenAddr, exposed through tunnels opened by dialer.
func NewLifecycle(listenAddr string, handler http.Handler, dialer Dialer, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		listenAddr: listenAddr,
		handler:    handler,
		dialer:     dialer,
		logger:     logger,
	}
}

// Start brings the listener up in a background goroutine and opens a tunnel
// to it. Calling Start while running reports the existing address and
// changes nothing.
func (l *Lifecycle) Start(ctx context.Context) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Running {
		return fmt.Sprintf("Server is already running at %s", l.publicURL)
	}

	ln, err := net.Listen("tcp", l.listenAddr)
	if err != nil {
		return fmt.Sprintf("Error starting server: %v", err)
	}

	server := &http.Server{Handler: l.handler}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Error("listener failed", "error", err)
		}
	}()

	handle, err := l.dialer.Open(ctx)
	if err != nil {
		// Roll the listener back so a failed start leaves us cleanly
		// stopped instead of half running.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		server.Shutdown(shutdownCtx)
		cancel()
		<-done
		return fmt.Sprintf("Error starting server: %v", err)
	}

	l.server = server
	l.done = done
	l.tunnel = handle
	l.publicURL = handle.URL()
	l.state = Running

	l.logger.Info("server started", "local", ln.Addr().String(), "public", l.publicURL)
	return fmt.Sprintf("Server started at %s", l.publicURL)
}

// Stop closes the tunnel, shuts the listener down, and clears the public
// URL. Calling Stop while stopped reports that and changes nothing.
func (l *Lifecycle) Stop() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Stopped {
		return "Server is not running."
	}

	var failure error
	if err := l.tunnel.Close(); err != nil {
		failure = fmt.Errorf("close tunnel: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.server.Shutdown(shutdownCtx); err != nil && failure == nil {
		failure = fmt.Errorf("shutdown listener: %w", err)
	}
	<-l.done

	l.tunnel = nil
	l.server = nil
	l.done = nil
	l.publicURL = ""
	l.state = Stopped

	if failure != nil {
		return fmt.Sprintf("Error stopping server: %v", failure)
	}
	l.logger.Info("server stopped")
	return "Server stopped successfully."
}

// State reports the current lifecycle phase.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// PublicURL returns the external address, or "" while stopped.
func (l *Lifecycle) PublicURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.publicURL
}

// Status renders the state for the control panel.
func (l *Lifecycle) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Running {
		return fmt.Sprintf("Server is running at %s", l.publicURL)
	}
	return "Server is not running."
}
