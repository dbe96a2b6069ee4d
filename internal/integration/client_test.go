package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"quietlink/internal/app"
	"quietlink/internal/config"
	"quietlink/pkg/types"
)

const frameTimeout = 3 * time.Second

// testClient is a browser stand-in: it collects every frame it receives
type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan types.Envelope
	done   chan struct{}
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+addr+"/ws", nil)
	require.NoError(t, err)

	c := &testClient{
		t:      t,
		conn:   conn,
		frames: make(chan types.Envelope, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *testClient) readLoop() {
	defer close(c.done)
	for {
		var env types.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.frames <- env
	}
}

func (c *testClient) send(event string, data interface{}) {
	c.t.Helper()
	frame := map[string]interface{}{"event": event}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

// expect skips frames until one with the given event arrives
func (c *testClient) expect(event string) types.Envelope {
	c.t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case env := <-c.frames:
			if env.Event == event {
				return env
			}
		case <-c.done:
			c.t.Fatalf("connection closed while waiting for %q", event)
		case <-deadline:
			c.t.Fatalf("timed out waiting for %q", event)
		}
	}
}

// expectNone fails if a frame with the given event arrives within d
func (c *testClient) expectNone(event string, d time.Duration) {
	c.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case env := <-c.frames:
			if env.Event == event {
				c.t.Fatalf("unexpected %q frame: %s", event, env.Data)
			}
		case <-deadline:
			return
		}
	}
}

func (c *testClient) matched() types.MatchedPayload {
	c.t.Helper()
	var p types.MatchedPayload
	require.NoError(c.t, json.Unmarshal(c.expect(types.EventMatched).Data, &p))
	return p
}

// countsMatching waits for a user-counts broadcast equal to want
func (c *testClient) countsMatching(want types.UserCounts) {
	c.t.Helper()
	deadline := time.After(frameTimeout)
	var last types.UserCounts
	for {
		select {
		case env := <-c.frames:
			if env.Event != types.EventUserCounts {
				continue
			}
			require.NoError(c.t, json.Unmarshal(env.Data, &last))
			if last == want {
				return
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for counts %+v, last %+v", want, last)
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.Matchmaking.PresenceDelay = 20 * time.Millisecond
	cfg.Database.Path = filepath.Join(t.TempDir(), "ledger.db")
	cfg.Log.Color = false
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *app.Application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	application, err := app.NewApplication(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", application.Addr()))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, frameTimeout, 20*time.Millisecond)
	return application
}
