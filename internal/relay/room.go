package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

var ErrRoomClosed = domain.ErrRoomClosed

type joinRequest struct {
	deviceID    string
	name        string
	conn        Conn
	requestedAt time.Time
}

// Room coordinates one caption room. All fields below the channels are
// owned by the run goroutine.
type Room struct {
	id    string
	cfg   Config
	store storage.Store
	log   *slog.Logger
	now   func() time.Time

	inbox       chan func()
	stop        chan struct{}
	done        chan struct{}
	saves       chan domain.Snapshot
	persistDone chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	started     bool

	participants map[string]*participant
	registry     *registry
	requests     map[string]*joinRequest
	speaking     map[string]struct{}
	attached     map[Conn]struct{}
	lastActivity time.Time
	// retired rooms refuse new connections while the manager stops them.
	retired bool
}

func NewRoom(id string, store storage.Store, cfg Config, log *slog.Logger, opts ...Option) *Room {
	if log == nil {
		log = slog.Default()
	}
	o := buildOptions(opts)
	cfg = cfg.withDefaults()

	return &Room{
		id:           id,
		cfg:          cfg,
		store:        store,
		log:          log.With(slog.String("component", "relay"), slog.String("room", id)),
		now:          o.now,
		inbox:        make(chan func(), cfg.InboxSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		saves:        make(chan domain.Snapshot, 1),
		persistDone:  make(chan struct{}),
		participants: make(map[string]*participant),
		registry:     newRegistry(),
		requests:     make(map[string]*joinRequest),
		speaking:     make(map[string]struct{}),
		attached:     make(map[Conn]struct{}),
	}
}

func (r *Room) ID() string { return r.id }

// Start loads the persisted snapshot and launches the room goroutines.
func (r *Room) Start(ctx context.Context) error {
	var err error
	r.startOnce.Do(func() {
		if err = r.loadSnapshot(ctx); err != nil {
			return
		}
		r.lastActivity = r.now()
		r.started = true
		go r.persistLoop()
		go r.run()
	})
	return err
}

// Stop ends the room loop and waits until the last snapshot is written.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		if !r.started {
			close(r.done)
			return
		}
		<-r.done
		close(r.saves)
		<-r.persistDone
		r.log.Debug("room stopped")
	})
}

func (r *Room) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			r.drain()
			return
		}
	}
}

// drain runs whatever is already queued so frames accepted before Stop are
// not lost.
func (r *Room) drain() {
	for {
		select {
		case fn := <-r.inbox:
			fn()
		default:
			return
		}
	}
}

func (r *Room) enqueue(fn func()) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- fn:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// call runs fn on the room goroutine and waits for it.
func (r *Room) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := r.enqueue(func() {
		fn()
		close(finished)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomClosed
	}
}

// Attach records a freshly opened connection. It does not admit it: that
// happens when the connection sends join. A retired room answers
// ErrRoomClosed.
func (r *Room) Attach(ctx context.Context, c Conn) error {
	var err error
	if cerr := r.call(ctx, func() {
		if r.retired {
			err = ErrRoomClosed
			return
		}
		r.attached[c] = struct{}{}
		r.lastActivity = r.now()
	}); cerr != nil {
		return cerr
	}
	return err
}

// Deliver queues one inbound text frame from c.
func (r *Room) Deliver(c Conn, data []byte) error {
	return r.enqueue(func() {
		r.lastActivity = r.now()
		r.handleFrame(c, data)
	})
}

// Detach reports that c is closed.
func (r *Room) Detach(c Conn) error {
	return r.enqueue(func() {
		r.lastActivity = r.now()
		r.handleDisconnect(c)
	})
}

// Sweep runs the heartbeat sweep now instead of waiting for the ticker.
func (r *Room) Sweep(ctx context.Context) error {
	return r.call(ctx, r.sweep)
}

func (r *Room) Status(ctx context.Context) (domain.RoomStatus, error) {
	var st domain.RoomStatus
	err := r.call(ctx, func() { st = r.status() })
	return st, err
}

// Participants returns a copy of every known participant.
func (r *Room) Participants(ctx context.Context) ([]domain.Participant, error) {
	var out []domain.Participant
	err := r.call(ctx, func() { out = r.snapshot().Sorted() })
	return out, err
}

// retireIfIdle retires the room when it has had no connections and no
// pending requests for at least ttl. It reports whether the room is retired
// and for how long it was idle.
func (r *Room) retireIfIdle(ctx context.Context, ttl time.Duration) (bool, time.Duration, error) {
	var (
		retired bool
		idleFor time.Duration
	)
	err := r.call(ctx, func() {
		if len(r.attached) > 0 || r.registry.len() > 0 || len(r.requests) > 0 {
			return
		}
		idleFor = r.now().Sub(r.lastActivity)
		if idleFor >= ttl {
			r.retired = true
		}
		retired = r.retired
	})
	return retired, idleFor, err
}

func (r *Room) handleDisconnect(c Conn) {
	delete(r.attached, c)

	if deviceID, ok := r.registry.unbindConn(c); ok {
		p, _ := r.get(deviceID)
		p.LastSeen = r.now()
		r.persist()
		r.log.Info("participant disconnected", "device", deviceID, "conn", c.ID())

		if _, speaking := r.speaking[deviceID]; speaking {
			delete(r.speaking, deviceID)
			r.broadcast(SpeakerMessage{
				Type:      TypeSpeakerStopped,
				SpeakerID: deviceID,
				Action:    actionStop,
				Timestamp: r.now().UnixMilli(),
			}, nil)
		}
		r.broadcastRoomState()
	}

	if req := r.requestByConn(c); req != nil {
		r.cancelRequest(req, ReasonDisconnected)
	}
}

func (r *Room) status() domain.RoomStatus {
	st := countStatus(r.id, r.snapshot())
	st.PendingCount = len(r.requests)
	st.ConnectedCount = r.registry.len()
	return st
}

// countStatus summarises the lifecycles of snap.
func countStatus(roomID string, snap domain.Snapshot) domain.RoomStatus {
	st := domain.RoomStatus{
		RoomID:           roomID,
		ParticipantCount: len(snap),
	}
	for _, p := range snap {
		switch p.Lifecycle {
		case domain.LifecycleActive:
			st.ActiveCount++
		case domain.LifecycleTimedOut:
			st.TimedOutCount++
		case domain.LifecycleDeclined:
			st.DeclinedCount++
		}
	}
	st.IsEmpty = st.ActiveCount == 0
	return st
}

func isClosed(err error) bool { return errors.Is(err, ErrRoomClosed) }
