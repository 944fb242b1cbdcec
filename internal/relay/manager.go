package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

var ErrManagerClosed = errors.New("relay: manager closed")

// Manager owns the room actors of one process, keyed by normalised room
// code. Rooms are created on first use and stopped once they stay idle for
// Config.IdleTTL. The manager lock only guards the map: loading, attaching
// and stopping happen outside it so rooms never wait on each other.
type Manager struct {
	store storage.Store
	cfg   Config
	log   *slog.Logger
	opts  []Option
	now   func() time.Time

	mu     sync.Mutex
	rooms  map[string]*roomEntry
	closed bool
}

// roomEntry is a room that is starting or running. ready is closed once
// Start returned; room and err are set before that.
type roomEntry struct {
	ready chan struct{}
	room  *Room
	err   error
}

func NewManager(store storage.Store, cfg Config, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store: store,
		cfg:   cfg.withDefaults(),
		log:   log.With(slog.String("component", "relay.manager")),
		opts:  opts,
		now:   buildOptions(opts).now,
		rooms: make(map[string]*roomEntry),
	}
}

// Get returns the running room for code, starting it from its persisted
// snapshot when needed. Concurrent callers for the same code share one
// start.
func (m *Manager) Get(ctx context.Context, code string) (*Room, error) {
	id, err := domain.NormalizeRoomCode(code)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	e, ok := m.rooms[id]
	if !ok {
		e = &roomEntry{ready: make(chan struct{})}
		m.rooms[id] = e
	}
	m.mu.Unlock()

	if !ok {
		// The load outlives a caller that gives up; others may be waiting.
		m.start(context.WithoutCancel(ctx), id, e)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.room, nil
}

func (m *Manager) start(ctx context.Context, id string, e *roomEntry) {
	defer close(e.ready)

	r := NewRoom(id, m.store, m.cfg, m.log, m.opts...)
	if err := r.Start(ctx); err != nil {
		e.err = fmt.Errorf("start room %s: %w", id, err)
		m.forget(id, e)
		return
	}
	e.room = r

	m.mu.Lock()
	n := len(m.rooms)
	m.mu.Unlock()
	m.log.Info("room started", "room", id, "rooms", n)
}

// forget drops the map entry for id if it still is e.
func (m *Manager) forget(id string, e *roomEntry) {
	m.mu.Lock()
	if m.rooms[id] == e {
		delete(m.rooms, id)
	}
	m.mu.Unlock()
}

// forgetRoom drops the map entry holding r, if any.
func (m *Manager) forgetRoom(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rooms[r.ID()]
	if !ok {
		return
	}
	select {
	case <-e.ready:
		if e.room == r {
			delete(m.rooms, r.ID())
		}
	default:
	}
}

func (m *Manager) lookup(id string) (*roomEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rooms[id]
	return e, ok
}

// attachRetries bounds how often Attach follows a room that was retired
// under it.
const attachRetries = 3

// Attach hands a new connection to the room for code. A room retired by the
// reclaimer in between is waited for and replaced by a fresh one.
func (m *Manager) Attach(ctx context.Context, code string, c Conn) (*Room, error) {
	for i := 0; ; i++ {
		r, err := m.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		err = r.Attach(ctx, c)
		if err == nil {
			return r, nil
		}
		if !isClosed(err) || i == attachRetries {
			return nil, err
		}
		// Let the last snapshot land before the next room loads it.
		r.Stop()
		m.forgetRoom(r)
	}
}

// Status reports the state of a room. Rooms that are not held in memory are
// answered from their stored snapshot without starting them.
func (m *Manager) Status(ctx context.Context, code string) (domain.RoomStatus, error) {
	id, err := domain.NormalizeRoomCode(code)
	if err != nil {
		return domain.RoomStatus{}, err
	}

	if e, ok := m.lookup(id); ok {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return domain.RoomStatus{}, ctx.Err()
		}
		if e.room != nil {
			st, err := e.room.Status(ctx)
			if !isClosed(err) {
				return st, err
			}
			e.room.Stop()
		}
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return domain.RoomStatus{}, ErrManagerClosed
	}
	return m.storedStatus(ctx, id)
}

func (m *Manager) storedStatus(ctx context.Context, id string) (domain.RoomStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
	defer cancel()

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return domain.RoomStatus{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	// Nobody is connected to a room that is not running.
	for devID, p := range snap {
		if p.Lifecycle == domain.LifecycleActive || !p.Lifecycle.Valid() {
			p.Lifecycle = domain.LifecycleTimedOut
			snap[devID] = p
		}
	}
	return countStatus(id, snap), nil
}

// Rooms lists the codes of the rooms currently held in memory.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run reclaims idle rooms until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reclaim(ctx)
		}
	}
}

// Reclaim stops every room that has had no connections and no pending
// requests for at least IdleTTL and returns how many were stopped.
func (m *Manager) Reclaim(ctx context.Context) int {
	type candidate struct {
		id string
		e  *roomEntry
	}

	m.mu.Lock()
	list := make([]candidate, 0, len(m.rooms))
	for id, e := range m.rooms {
		select {
		case <-e.ready:
			if e.room != nil {
				list = append(list, candidate{id, e})
			}
		default:
		}
	}
	m.mu.Unlock()

	n := 0
	for _, c := range list {
		qctx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
		retired, idleFor, err := c.e.room.retireIfIdle(qctx, m.cfg.IdleTTL)
		cancel()

		switch {
		case isClosed(err):
			m.forget(c.id, c.e)
			continue
		case err != nil:
			m.log.Warn("room idle check failed", "room", c.id, slog.Any("err", err))
			continue
		case !retired:
			continue
		}

		c.e.room.Stop()
		m.forget(c.id, c.e)
		n++
		m.log.Info("idle room reclaimed", "room", c.id, "idle_for", idleFor.String())
	}
	return n
}

// Close stops every room and waits for their last snapshots to be written.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	rooms := m.rooms
	m.rooms = make(map[string]*roomEntry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range rooms {
		wg.Add(1)
		go func(e *roomEntry) {
			defer wg.Done()
			<-e.ready
			if e.room != nil {
				e.room.Stop()
			}
		}(e)
	}
	wg.Wait()
	m.log.Info("rooms stopped", "count", len(rooms))
}
