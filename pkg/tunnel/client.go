package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
)

// ErrNoTunnel is returned when a disconnect is requested but no tunnel is
// currently open.
var ErrNoTunnel = errors.New("no open tunnel")

// Config holds the client side of a tunnel.
type Config struct {
	// RelayAddr is the host:port of the relay's control plane.
	RelayAddr string
	// Token authenticates this agent with the relay.
	Token string
	// LocalAddr is the local listener relayed traffic is proxied to.
	LocalAddr string
	// Subdomain optionally requests a fixed subdomain; the relay assigns
	// a random one when empty.
	Subdomain string
	// DialTimeout bounds the initial TCP dial. Defaults to 10s.
	DialTimeout time.Duration
}

// Client opens tunnels to a relay and tracks which ones are live.
type Client struct {
	config Config
	logger *slog.Logger

	mu   sync.Mutex
	open []*Tunnel
}

// Tunnel is a live reverse relay session with an assigned public URL.
type Tunnel struct {
	url     string
	session *yamux.Session
	cancel  context.CancelFunc

	closeOnce sync.Once
	onClose   func(*Tunnel)
}

// NewClient creates a tunnel client. A nil logger falls back to the default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{config: cfg, logger: logger}
}

// Open dials the relay, authenticates, and starts serving relayed streams
// in the background. It returns once the relay has assigned a public URL.
func (c *Client) Open(ctx context.Context) (*Tunnel, error) {
	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.RelayAddr)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	cfg := yamux.DefaultConfig()
	cfg.KeepAliveInterval = 30 * time.Second
	cfg.LogOutput = io.Discard
	session, err := yamux.Client(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("yamux setup failed: %w", err)
	}

	ctlStream, err := session.Open()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open control stream: %w", err)
	}

	req := ConnectRequest{Token: c.config.Token, Subdomain: c.config.Subdomain}
	if err := WriteFrame(ctlStream, FrameConnectRequest, req); err != nil {
		session.Close()
		return nil, fmt.Errorf("handshake write failed: %w", err)
	}

	frame, _, err := ReadFrame(ctlStream)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("handshake read failed: %w", err)
	}

	var resp ConnectResponse
	if err := DecodePayload(frame, FrameConnectResponse, &resp); err != nil {
		session.Close()
		return nil, err
	}
	if !resp.OK {
		session.Close()
		return nil, fmt.Errorf("relay rejected tunnel: %s", resp.Error)
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	t := &Tunnel{
		url:     resp.URL,
		session: session,
		cancel:  cancel,
		onClose: c.forget,
	}

	c.mu.Lock()
	c.open = append(c.open, t)
	c.mu.Unlock()

	c.logger.Info("tunnel established", "url", resp.URL)
	go c.serve(serveCtx, t)

	return t, nil
}

// Tunnels returns the currently open tunnels, oldest first.
func (c *Client) Tunnels() []*Tunnel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Tunnel, len(c.open))
	copy(out, c.open)
	return out
}

// DisconnectFirst closes the first currently open tunnel. It returns
// ErrNoTunnel when none is open.
func (c *Client) DisconnectFirst() error {
	c.mu.Lock()
	var first *Tunnel
	if len(c.open) > 0 {
		first = c.open[0]
	}
	c.mu.Unlock()

	if first == nil {
		return ErrNoTunnel
	}
	return first.Close()
}

func (c *Client) forget(t *Tunnel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, open := range c.open {
		if open == t {
			c.open = append(c.open[:i], c.open[i+1:]...)
			return
		}
	}
}

// serve accepts relayed streams until the session or context ends.
func (c *Client) serve(ctx context.Context, t *Tunnel) {
	go func() {
		select {
		case <-ctx.Done():
			t.session.Close()
		case <-t.session.CloseChan():
		}
	}()

	for {
		stream, err := t.session.Accept()
		if err != nil {
			if err != io.EOF && !errors.Is(err, yamux.ErrSessionShutdown) && ctx.Err() == nil {
				c.logger.Error("accept stream failed", "error", err)
			}
			t.Close()
			return
		}
		go c.handleStream(stream)
	}
}

// handleStream proxies one relayed connection to the local listener.
func (c *Client) handleStream(remote net.Conn) {
	defer remote.Close()

	frame, buffered, err := ReadFrame(remote)
	if err != nil {
		c.logger.Error("failed to read stream open", "error", err)
		return
	}
	var open StreamOpen
	if err := DecodePayload(frame, FrameStreamOpen, &open); err != nil {
		c.logger.Error("invalid stream open frame", "error", err)
		return
	}

	local, err := net.Dial("tcp", c.config.LocalAddr)
	if err != nil {
		c.logger.Error("failed to dial local listener", "addr", c.config.LocalAddr, "error", err)
		return
	}
	defer local.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(local, buffered)
		if tc, ok := local.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		io.Copy(remote, local)
	}()
	wg.Wait()
}

// URL returns the public address assigned by the relay.
func (t *Tunnel) URL() string {
	return t.url
}

// Close tears the tunnel down. Safe to call more than once.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		if t.onClose != nil {
			t.onClose(t)
		}
	})
	return nil
}
