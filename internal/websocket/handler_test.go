package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quietlink/pkg/interfaces"
)

type fakeLifecycle struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	connectErr   error
}

func (f *fakeLifecycle) Connect(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = append(f.connected, id)
	return nil
}

func (f *fakeLifecycle) Disconnect(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
	return nil
}

func (f *fakeLifecycle) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connected...), append([]string(nil), f.disconnected...)
}

// echoRouter writes every frame back and records forgotten sessions
type echoRouter struct {
	mu        sync.Mutex
	forgotten []string
}

func (e *echoRouter) Route(_ context.Context, conn interfaces.Connection, data []byte) {
	_ = conn.WriteJSON(map[string]string{"session": conn.GetSessionID(), "echo": string(data)})
}

func (e *echoRouter) Forget(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.forgotten = append(e.forgotten, sessionID)
}

func (e *echoRouter) forgottenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.forgotten)
}

func newTestHandler(t *testing.T, settings Settings) (*Handler, *Registry, *fakeLifecycle, *echoRouter, string) {
	t.Helper()
	registry := NewRegistry()
	lifecycle := &fakeLifecycle{}
	router := &echoRouter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewHandler(registry, lifecycle, router, settings, logger)
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	return h, registry, lifecycle, router, "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHandler_ConnectRouteDisconnect(t *testing.T) {
	h, registry, lifecycle, router, url := newTestHandler(t, DefaultSettings())

	var counts []int
	var mu sync.Mutex
	h.OnConnectionsChanged(func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	})

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	connected, _ := lifecycle.snapshot()
	require.Len(t, connected, 1)
	sessionID := connected[0]
	assert.Len(t, sessionID, 36, "session IDs are UUIDs")

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-random"}`)))
	var reply map[string]string
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, client.ReadJSON(&reply))
	assert.Equal(t, sessionID, reply["session"])
	assert.Equal(t, `{"event":"join-random"}`, reply["echo"])

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		_, disconnected := lifecycle.snapshot()
		return len(disconnected) == 1 && disconnected[0] == sessionID
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, registry.Count())
	assert.Equal(t, 1, router.forgottenCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, counts)
}

func TestHandler_DistinctSessionPerSocket(t *testing.T) {
	_, registry, lifecycle, _, url := newTestHandler(t, DefaultSettings())

	for i := 0; i < 3; i++ {
		client, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer client.Close()
	}

	require.Eventually(t, func() bool { return registry.Count() == 3 }, 2*time.Second, 10*time.Millisecond)
	connected, _ := lifecycle.snapshot()
	assert.Len(t, connected, 3)
	assert.NotEqual(t, connected[0], connected[1])
	assert.NotEqual(t, connected[1], connected[2])
}

func TestHandler_ConnectFailureClosesSocket(t *testing.T) {
	_, registry, lifecycle, _, url := newTestHandler(t, DefaultSettings())
	lifecycle.mu.Lock()
	lifecycle.connectErr = errors.New("store down")
	lifecycle.mu.Unlock()

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	assert.Error(t, err, "server closes the socket")
	assert.Zero(t, registry.Count())
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	settings := DefaultSettings()
	settings.AllowedOrigins = []string{"https://chat.example"}
	_, _, _, _, url := newTestHandler(t, settings)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://chat.example"}}
	client, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	client.Close()
}

func TestHandler_ReadTimeoutDisconnects(t *testing.T) {
	settings := DefaultSettings()
	settings.ReadTimeout = 100 * time.Millisecond
	settings.PingInterval = time.Hour
	_, _, lifecycle, _, url := newTestHandler(t, settings)

	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool {
		_, disconnected := lifecycle.snapshot()
		return len(disconnected) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandler_ShutdownClosesSessions(t *testing.T) {
	h, registry, lifecycle, _, url := newTestHandler(t, DefaultSettings())

	clients := make([]*websocket.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		client, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer client.Close()
		clients = append(clients, client)
	}
	require.Eventually(t, func() bool { return registry.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	_, disconnected := lifecycle.snapshot()
	assert.Len(t, disconnected, 3, "every session is cleaned up before Shutdown returns")
	assert.Zero(t, registry.Count())

	for _, client := range clients {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := client.ReadMessage()
		assert.Error(t, err)
	}
}
