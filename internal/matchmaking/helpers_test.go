package matchmaking

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quietlink/internal/session"
	"quietlink/internal/store"
	"quietlink/pkg/interfaces"
	"quietlink/pkg/types"
)

// recordingEmitter captures every delivery and hands it to the attached
// sinks, the way the hub of each instance would
type recordingEmitter struct {
	mu         sync.Mutex
	deliveries []*types.Delivery
	sinks      []func(*types.Delivery) bool

	// while holding, deliveries are recorded but reach the sinks only on release
	holding bool
	held    []*types.Delivery
}

func (e *recordingEmitter) Publish(_ context.Context, d *types.Delivery) error {
	e.mu.Lock()
	e.deliveries = append(e.deliveries, d)
	if e.holding {
		e.held = append(e.held, d)
		e.mu.Unlock()
		return nil
	}
	sinks := append([]func(*types.Delivery) bool(nil), e.sinks...)
	e.mu.Unlock()

	for _, sink := range sinks {
		sink(d)
	}
	return nil
}

// hold keeps deliveries in flight, as a slow bus would
func (e *recordingEmitter) hold() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.holding = true
}

// release stops holding and hands every held delivery to the sinks in order
func (e *recordingEmitter) release() {
	e.mu.Lock()
	held := e.held
	e.held, e.holding = nil, false
	sinks := append([]func(*types.Delivery) bool(nil), e.sinks...)
	e.mu.Unlock()

	for _, d := range held {
		for _, sink := range sinks {
			sink(d)
		}
	}
}

func (e *recordingEmitter) attach(c *Coordinator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, c.Apply)
}

func (e *recordingEmitter) find(target, event string) []*types.Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*types.Delivery
	for _, d := range e.deliveries {
		if d.Target == target && d.Event == event {
			out = append(out, d)
		}
	}
	return out
}

func (e *recordingEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, d := range e.deliveries {
		if d.Event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	coord    *Coordinator
	store    interfaces.StateStore
	online   *store.OnlineSet
	emitter  *recordingEmitter
	sessions *session.Manager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PresenceDelay = 20 * time.Millisecond
	cfg.InstanceID = "test-instance"
	return cfg
}

// newFixture builds a coordinator over a memory store whose deliveries loop
// back into its own Apply
func newFixture(t *testing.T, shared interfaces.StateStore, emitter *recordingEmitter) *fixture {
	t.Helper()

	if shared == nil {
		mem := store.NewMemoryStore()
		t.Cleanup(func() { mem.Close() })
		shared = mem
	}
	if emitter == nil {
		emitter = &recordingEmitter{}
	}

	online := store.NewOnlineSet(shared, "online_users")
	sessions := session.NewManager()
	coord, err := New(testConfig(), Deps{
		Store:    shared,
		Registry: online,
		Emitter:  emitter,
		Sessions: sessions,
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(coord.Stop)
	emitter.attach(coord)

	return &fixture{coord: coord, store: shared, online: online, emitter: emitter, sessions: sessions}
}

func (f *fixture) connect(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.coord.Connect(context.Background(), id))
	}
}

func (f *fixture) status(t *testing.T, id string) types.Status {
	t.Helper()
	s, ok := f.sessions.Get(id)
	require.True(t, ok, "session %s not found", id)
	return s.Status()
}

func (f *fixture) inSet(t *testing.T, set, id string) bool {
	t.Helper()
	ok, err := f.store.Contains(context.Background(), set, id)
	require.NoError(t, err)
	return ok
}

func (f *fixture) size(t *testing.T, set string) int64 {
	t.Helper()
	n, err := f.store.Cardinality(context.Background(), set)
	require.NoError(t, err)
	return n
}

func decodeMatched(t *testing.T, d *types.Delivery) types.MatchedPayload {
	t.Helper()
	var p types.MatchedPayload
	require.NoError(t, json.Unmarshal(d.Data, &p))
	return p
}
