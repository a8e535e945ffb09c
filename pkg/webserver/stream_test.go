package webserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/voxaura/voxaura/pkg/events"
)

// wsPair returns a connected client/server websocket pair.
func wsPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })
	server = <-serverCh
	return client, server
}

func testBus(t *testing.T) *events.Bus {
	t.Helper()
	bus, err := events.NewBus(events.Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestConnectionPoolBroadcast(t *testing.T) {
	client, server := wsPair(t)

	pool := NewConnectionPool("s1")
	pool.Add(server)
	require.Equal(t, 1, pool.Count())

	pool.Broadcast([]byte(`{"type":"stage_started"}`))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"stage_started"}`, string(payload))
}

func TestConnectionPoolDropsDeadConnections(t *testing.T) {
	_, server := wsPair(t)

	pool := NewConnectionPool("s1")
	pool.Add(server)
	require.NoError(t, server.Close())

	pool.Broadcast([]byte("x"))
	require.Equal(t, 0, pool.Count())
}

func TestConnectionPoolReportsIdleAfterLastRemove(t *testing.T) {
	_, server := wsPair(t)

	pool := NewConnectionPool("s1")
	pool.Add(server)
	_, idle := pool.IdleSince()
	require.False(t, idle)

	pool.Remove(server)
	since, idle := pool.IdleSince()
	require.True(t, idle)
	require.WithinDuration(t, time.Now(), since, time.Second)
}

func TestStreamHubReapsIdleForwarders(t *testing.T) {
	_, server := wsPair(t)

	hub := NewStreamHub(context.Background(), testBus(t), 30*time.Millisecond)
	t.Cleanup(hub.Close)

	pool, err := hub.attach("s1")
	require.NoError(t, err)
	pool.Add(server)
	require.Equal(t, 1, hub.ActiveStreams())

	pool.Remove(server)
	require.Eventually(t, func() bool { return hub.ActiveStreams() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestStreamHubKeepsForwardersWithClients(t *testing.T) {
	_, server := wsPair(t)

	hub := NewStreamHub(context.Background(), testBus(t), 30*time.Millisecond)
	t.Cleanup(hub.Close)

	pool, err := hub.attach("s1")
	require.NoError(t, err)
	pool.Add(server)

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, 1, hub.ActiveStreams())
}
