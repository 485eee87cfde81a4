package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"github.com/hmansour/chatbridge/pkg/tunnel"
)

// Config holds relay configuration.
type Config struct {
	// ControlAddr is where tunnel agents connect, host:port.
	ControlAddr string
	// PublicAddr is where public HTTP traffic arrives, host:port.
	PublicAddr string
	// Domain is the base domain public URLs are minted under.
	Domain string
	// Token is the shared secret agents must present.
	Token string
}

// agentSession is one connected tunnel agent.
type agentSession struct {
	id          string
	subdomain   string
	session     *yamux.Session
	connectedAt time.Time
}

// Relay accepts tunnel agents on a control port and forwards public HTTP
// requests to them over multiplexed streams.
type Relay struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	registry map[string]*agentSession

	// Actual bound addresses, set by Start. Useful when the configured
	// addresses use port 0.
	controlAddr string
	publicAddr  string
	ready       chan struct{}
}

var subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// New creates a relay. A nil logger falls back to the default.
func New(cfg Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		config:   cfg,
		logger:   logger,
		registry: make(map[string]*agentSession),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once both listeners are bound.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// ControlAddr returns the bound control address after Ready.
func (r *Relay) ControlAddr() string {
	return r.controlAddr
}

// PublicAddr returns the bound public address after Ready.
func (r *Relay) PublicAddr() string {
	return r.publicAddr
}

// Start runs the control and public listeners until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	ctl, err := net.Listen("tcp", r.config.ControlAddr)
	if err != nil {
		return fmt.Errorf("listen control: %w", err)
	}
	r.controlAddr = ctl.Addr().String()
	r.logger.Info("control plane listening", "addr", r.controlAddr)

	go func() {
		<-ctx.Done()
		ctl.Close()
	}()
	go r.acceptAgents(ctx, ctl)

	pub, err := net.Listen("tcp", r.config.PublicAddr)
	if err != nil {
		ctl.Close()
		return fmt.Errorf("listen public: %w", err)
	}
	r.publicAddr = pub.Addr().String()

	server := &http.Server{Handler: r.publicHandler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	r.logger.Info("public http listening", "addr", r.publicAddr)
	close(r.ready)
	if err := server.Serve(pub); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (r *Relay) acceptAgents(ctx context.Context, l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			r.logger.Error("accept error", "error", err)
			continue
		}
		go r.handleAgent(conn)
	}
}

func (r *Relay) handleAgent(conn net.Conn) {
	cfg := yamux.DefaultConfig()
	cfg.KeepAliveInterval = 30 * time.Second
	cfg.LogOutput = io.Discard
	session, err := yamux.Server(conn, cfg)
	if err != nil {
		r.logger.Error("yamux setup failed", "error", err)
		conn.Close()
		return
	}

	ctlStream, err := session.Accept()
	if err != nil {
		r.logger.Error("failed to accept control stream", "error", err)
		session.Close()
		return
	}

	frame, _, err := tunnel.ReadFrame(ctlStream)
	if err != nil {
		r.logger.Error("handshake read failed", "error", err)
		session.Close()
		return
	}

	var req tunnel.ConnectRequest
	if err := tunnel.DecodePayload(frame, tunnel.FrameConnectRequest, &req); err != nil {
		r.logger.Warn("invalid handshake", "error", err)
		session.Close()
		return
	}

	if req.Token != r.config.Token {
		tunnel.WriteFrame(ctlStream, tunnel.FrameConnectResponse, tunnel.ConnectResponse{
			OK:    false,
			Error: "invalid token",
		})
		session.Close()
		return
	}

	sub := strings.ToLower(req.Subdomain)
	if sub == "" {
		sub = randomSubdomain()
	} else if !subdomainRe.MatchString(sub) {
		r.reject(ctlStream, session, fmt.Sprintf("invalid subdomain %q", sub))
		return
	}

	agent := &agentSession{
		id:          uuid.NewString(),
		subdomain:   sub,
		session:     session,
		connectedAt: time.Now(),
	}

	r.mu.Lock()
	if _, exists := r.registry[sub]; exists {
		r.mu.Unlock()
		r.reject(ctlStream, session, fmt.Sprintf("subdomain %s in use", sub))
		return
	}
	r.registry[sub] = agent
	r.mu.Unlock()

	url := r.publicURL(sub)
	if err := tunnel.WriteFrame(ctlStream, tunnel.FrameConnectResponse, tunnel.ConnectResponse{
		OK:  true,
		URL: url,
	}); err != nil {
		r.unregister(agent)
		session.Close()
		return
	}

	r.logger.Info("agent connected", "id", agent.id, "subdomain", sub, "url", url)

	<-session.CloseChan()
	r.unregister(agent)
	r.logger.Info("agent disconnected", "id", agent.id, "subdomain", sub)
}

func (r *Relay) reject(w io.Writer, session *yamux.Session, reason string) {
	tunnel.WriteFrame(w, tunnel.FrameConnectResponse, tunnel.ConnectResponse{
		OK:    false,
		Error: reason,
	})
	session.Close()
}

func (r *Relay) unregister(agent *agentSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.registry[agent.subdomain]; ok && current == agent {
		delete(r.registry, agent.subdomain)
	}
}

// AgentCount reports how many agents are currently registered.
func (r *Relay) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registry)
}

func (r *Relay) publicURL(sub string) string {
	host := fmt.Sprintf("%s.%s", sub, r.config.Domain)
	addr := r.publicAddr
	if addr == "" {
		addr = r.config.PublicAddr
	}
	if _, port, err := net.SplitHostPort(addr); err == nil && port != "80" {
		return fmt.Sprintf("http://%s:%s", host, port)
	}
	return "http://" + host
}

// publicHandler forwards each public request to the owning agent over a
// fresh stream.
func (r *Relay) publicHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		host := req.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		sub := strings.Split(host, ".")[0]

		r.mu.RLock()
		agent, ok := r.registry[sub]
		r.mu.RUnlock()
		if !ok {
			http.Error(w, "Tunnel not found", http.StatusNotFound)
			return
		}

		stream, err := agent.session.Open()
		if err != nil {
			r.logger.Error("failed to open stream to agent", "subdomain", sub, "error", err)
			http.Error(w, "Agent unreachable", http.StatusBadGateway)
			return
		}
		defer stream.Close()

		if err := tunnel.WriteFrame(stream, tunnel.FrameStreamOpen, tunnel.StreamOpen{Subdomain: sub}); err != nil {
			r.logger.Error("failed to send stream open", "error", err)
			http.Error(w, "Tunnel init failed", http.StatusBadGateway)
			return
		}

		clientIP := req.RemoteAddr
		if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			clientIP = ip
		}
		req.Header.Set("X-Forwarded-For", clientIP)
		req.Header.Set("X-Forwarded-Proto", "http")

		if req.URL.Scheme == "" {
			req.URL.Scheme = "http"
		}
		if req.URL.Host == "" {
			req.URL.Host = req.Host
		}

		if err := req.Write(stream); err != nil {
			r.logger.Error("failed to forward request", "error", err)
			http.Error(w, "Failed to forward request", http.StatusBadGateway)
			return
		}

		resp, err := http.ReadResponse(bufio.NewReader(stream), req)
		if err != nil {
			r.logger.Error("failed to read agent response", "error", err)
			http.Error(w, "Failed to read response", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	})
}

// randomSubdomain derives a short label for agents that did not ask for a
// fixed one.
func randomSubdomain() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
