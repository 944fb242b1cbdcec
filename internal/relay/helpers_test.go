package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

var errSendFailed = errors.New("send failed")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeConn struct {
	id string

	mu          sync.Mutex
	frames      [][]byte
	failSend    bool
	closed      bool
	closeCode   int
	closeReason string
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend || c.closed {
		return errSendFailed
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

func (c *fakeConn) isClosed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

// received returns the raw frames of the given type, in arrival order.
func (c *fakeConn) received(typ string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out [][]byte
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(f, &env) == nil && env.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) count(typ string) int { return len(c.received(typ)) }

func (c *fakeConn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// last decodes the most recent frame of type typ into T.
func last[T any](t *testing.T, c *fakeConn, typ string) T {
	t.Helper()
	frames := c.received(typ)
	require.NotEmptyf(t, frames, "%s received no %q", c.id, typ)

	var v T
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], &v))
	return v
}

type failingStore struct {
	*storage.Memory
}

func (failingStore) Save(context.Context, string, domain.Snapshot) error {
	return errors.New("disk full")
}

// blockingStore holds Load of one room until release is called.
type blockingStore struct {
	*storage.Memory
	room    string
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newBlockingStore(room string) *blockingStore {
	return &blockingStore{
		Memory:  storage.NewMemory(),
		room:    room,
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

func (s *blockingStore) Load(ctx context.Context, roomID string) (domain.Snapshot, error) {
	if roomID == s.room {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.gate
	}
	return s.Memory.Load(ctx, roomID)
}

func (s *blockingStore) release() { s.once.Do(func() { close(s.gate) }) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		HeartbeatTimeout: time.Minute,
		// Sweeps are triggered explicitly.
		SweepInterval:  time.Hour,
		JoinRequestTTL: 10 * time.Minute,
		IdleTTL:        10 * time.Minute,
	}
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *fakeClock
	store storage.Store
	room  *Room
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, storage.NewMemory(), testConfig())
}

func newHarnessWith(t *testing.T, store storage.Store, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		clock: newFakeClock(),
		store: store,
	}
	h.room = NewRoom("TALK47", store, cfg, discardLogger(), WithClock(h.clock.Now))
	require.NoError(t, h.room.Start(h.ctx))
	t.Cleanup(h.room.Stop)
	return h
}

// flush waits until every frame queued so far has been handled.
func (h *harness) flush() {
	h.t.Helper()
	_, err := h.room.Status(h.ctx)
	require.NoError(h.t, err)
}

func (h *harness) attach(id string) *fakeConn {
	h.t.Helper()
	c := newConn(id)
	require.NoError(h.t, h.room.Attach(h.ctx, c))
	return c
}

func (h *harness) send(c *fakeConn, msg map[string]any) {
	h.t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(h.t, err)
	require.NoError(h.t, h.room.Deliver(c, data))
	h.flush()
}

func (h *harness) join(c *fakeConn, deviceID, name string) {
	h.t.Helper()
	h.send(c, map[string]any{"type": TypeJoin, "deviceUuid": deviceID, "displayName": name})
}

func (h *harness) detach(c *fakeConn) {
	h.t.Helper()
	require.NoError(h.t, h.room.Detach(c))
	h.flush()
}

func (h *harness) sweep() {
	h.t.Helper()
	require.NoError(h.t, h.room.Sweep(h.ctx))
}

func (h *harness) status() domain.RoomStatus {
	h.t.Helper()
	st, err := h.room.Status(h.ctx)
	require.NoError(h.t, err)
	return st
}

// participant returns the stored state of deviceID and whether it exists.
func (h *harness) participant(deviceID string) (domain.Participant, bool) {
	h.t.Helper()
	all, err := h.room.Participants(h.ctx)
	require.NoError(h.t, err)
	for _, p := range all {
		if p.DeviceID == deviceID {
			return p, true
		}
	}
	return domain.Participant{}, false
}

func (h *harness) lifecycle(deviceID string) domain.Lifecycle {
	h.t.Helper()
	p, ok := h.participant(deviceID)
	require.Truef(h.t, ok, "participant %s not found", deviceID)
	return p.Lifecycle
}

// admitPair joins A1 into the empty room and admits B1 through approval.
func (h *harness) admitPair() (a, b *fakeConn) {
	h.t.Helper()
	a = h.attach("conn-a")
	b = h.attach("conn-b")
	h.join(a, "A1", "Alice")
	h.join(b, "B1", "Bob")
	h.send(a, map[string]any{"type": TypeApproveJoin, "requesterId": "B1"})
	require.Equal(h.t, domain.LifecycleActive, h.lifecycle("B1"))
	return a, b
}

func viewIDs(views []ParticipantView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}
