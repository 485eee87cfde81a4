package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmansour/chatbridge/pkg/tunnel"
)

// startRelay runs a relay on random ports and tears it down with the test.
func startRelay(t *testing.T, token string) *Relay {
	t.Helper()

	r := New(Config{
		ControlAddr: "127.0.0.1:0",
		PublicAddr:  "127.0.0.1:0",
		Domain:      "relay.test",
		Token:       token,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Start(ctx)

	select {
	case <-r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not become ready")
	}
	return r
}

// startLocalServer runs the HTTP server a tunnel agent fronts.
func startLocalServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "echo %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// publicGet issues a request to the relay's public listener with the Host
// header a real subdomain request would carry.
func publicGet(t *testing.T, r *Relay, publicURL, path string) (*http.Response, error) {
	t.Helper()
	parsed, err := url.Parse(publicURL)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://"+r.PublicAddr()+path, nil)
	require.NoError(t, err)
	req.Host = parsed.Host

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}

func TestRelay_EndToEnd(t *testing.T) {
	r := startRelay(t, "secret")
	local := startLocalServer(t)

	client := tunnel.NewClient(tunnel.Config{
		RelayAddr: r.ControlAddr(),
		Token:     "secret",
		LocalAddr: strings.TrimPrefix(local.URL, "http://"),
		Subdomain: "chatbot",
	}, nil)

	tun, err := client.Open(context.Background())
	require.NoError(t, err)
	defer tun.Close()

	assert.Contains(t, tun.URL(), "chatbot.relay.test")
	assert.Equal(t, 1, r.AgentCount())

	resp, err := publicGet(t, r, tun.URL(), "/hello")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "echo /hello", string(body))
}

func TestRelay_RejectsBadToken(t *testing.T) {
	r := startRelay(t, "secret")
	local := startLocalServer(t)

	client := tunnel.NewClient(tunnel.Config{
		RelayAddr: r.ControlAddr(),
		Token:     "wrong",
		LocalAddr: strings.TrimPrefix(local.URL, "http://"),
	}, nil)

	_, err := client.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.Zero(t, r.AgentCount())
}

func TestRelay_RejectsDuplicateSubdomain(t *testing.T) {
	r := startRelay(t, "secret")
	local := startLocalServer(t)

	cfg := tunnel.Config{
		RelayAddr: r.ControlAddr(),
		Token:     "secret",
		LocalAddr: strings.TrimPrefix(local.URL, "http://"),
		Subdomain: "taken",
	}

	first, err := tunnel.NewClient(cfg, nil).Open(context.Background())
	require.NoError(t, err)
	defer first.Close()

	_, err = tunnel.NewClient(cfg, nil).Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")
}

func TestRelay_RejectsInvalidSubdomain(t *testing.T) {
	r := startRelay(t, "secret")
	local := startLocalServer(t)

	_, err := tunnel.NewClient(tunnel.Config{
		RelayAddr: r.ControlAddr(),
		Token:     "secret",
		LocalAddr: strings.TrimPrefix(local.URL, "http://"),
		Subdomain: "Not Valid!",
	}, nil).Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid subdomain")
}

func TestRelay_AssignsRandomSubdomain(t *testing.T) {
	r := startRelay(t, "secret")
	local := startLocalServer(t)

	tun, err := tunnel.NewClient(tunnel.Config{
		RelayAddr: r.ControlAddr(),
		Token:     "secret",
		LocalAddr: strings.TrimPrefix(local.URL, "http://"),
	}, nil).Open(context.Background())
	require.NoError(t, err)
	defer tun.Close()

	assert.Contains(t, tun.URL(), ".relay.test")
}

func TestRelay_DisconnectFreesSubdomain(t *testing.T) {
	r := startRelay(t, "secret")
	local := startLocalServer(t)

	client := tunnel.NewClient(tunnel.Config{
		RelayAddr: r.ControlAddr(),
		Token:     "secret",
		LocalAddr: strings.TrimPrefix(local.URL, "http://"),
		Subdomain: "chatbot",
	}, nil)

	tun, err := client.Open(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tun.URL(), "chatbot.relay.test")
	assert.Len(t, client.Tunnels(), 1)

	require.NoError(t, client.DisconnectFirst())
	assert.Empty(t, client.Tunnels())

	// The relay notices the session closing and frees the name.
	require.Eventually(t, func() bool {
		return r.AgentCount() == 0
	}, 5*time.Second, 20*time.Millisecond)

	// A fresh tunnel can claim the subdomain again.
	tun2, err := client.Open(context.Background())
	require.NoError(t, err)
	defer tun2.Close()
	assert.Contains(t, tun2.URL(), "chatbot.relay.test")
}

func TestRelay_UnknownSubdomainIs404(t *testing.T) {
	r := startRelay(t, "secret")

	req, err := http.NewRequest(http.MethodGet, "http://"+r.PublicAddr()+"/", nil)
	require.NoError(t, err)
	req.Host = "ghost.relay.test"

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
