package tunnel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_DisconnectFirst_NoTunnel(t *testing.T) {
	client := NewClient(Config{RelayAddr: "127.0.0.1:1"}, nil)
	assert.ErrorIs(t, client.DisconnectFirst(), ErrNoTunnel)
}

func TestClient_Open_RelayUnreachable(t *testing.T) {
	client := NewClient(Config{
		RelayAddr:   "127.0.0.1:1",
		Token:       "secret",
		LocalAddr:   "127.0.0.1:5000",
		DialTimeout: 200 * time.Millisecond,
	}, nil)

	_, err := client.Open(context.Background())
	assert.Error(t, err)
	assert.Empty(t, client.Tunnels())
}
