package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/gate"
	"github.com/cwrk-planet/caption-relay/internal/logger"
	"github.com/cwrk-planet/caption-relay/internal/relay"
)

const tracerName = "github.com/cwrk-planet/caption-relay/internal/transport/ws"

type Config struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	SendQueue       int
	// AllowedOrigins limits browser origins; empty allows any.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	return c
}

// Rooms is the part of relay.Manager the server needs.
type Rooms interface {
	Attach(ctx context.Context, code string, c relay.Conn) (*relay.Room, error)
}

type Server struct {
	upgrader websocket.Upgrader
	rooms    Rooms
	gate     *gate.Gate
	hub      *Hub
	cfg      Config
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewServer(rooms Rooms, g *gate.Gate, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Component("ws")
	}
	cfg = cfg.withDefaults()
	return &Server{
		rooms: rooms,
		gate:  g,
		hub:   NewHub(),
		cfg:   cfg,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		tracer: otel.Tracer(tracerName),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Hub exposes the tracker of open sockets.
func (s *Server) Hub() *Hub { return s.hub }

// HandleWS serves GET /ws/rooms/{code}?token=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := domain.NormalizeRoomCode(chi.URLParam(r, "code"))
	if err != nil {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "ws.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("relay.room", roomID)))
	defer span.End()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request.
		s.log.Warn("ws upgrade failed", "room", roomID, "err", err)
		span.SetStatus(codes.Error, "upgrade failed")
		return
	}

	c := newWsConn(conn, uuid.NewString(), roomID, s.cfg)
	log := logger.WithTrace(ctx, s.log).With("room", roomID, "conn", c.id)
	go c.writeLoop()

	if err := s.gate.Check(roomID, gate.TokenFromRequest(r)); err != nil {
		log.Warn("ws connection refused", "err", err, "remote_ip", r.RemoteAddr)
		span.SetStatus(codes.Error, ReasonUnauthorized)
		_ = c.Close(relay.ClosePolicyViolation, ReasonUnauthorized)
		<-c.done
		return
	}

	room, err := s.rooms.Attach(ctx, roomID, c)
	if err != nil {
		log.Error("ws attach failed", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, ReasonRoomUnavailable)
		_ = c.Close(relay.CloseInternalError, ReasonRoomUnavailable)
		<-c.done
		return
	}

	s.hub.Add(c)
	log.Debug("ws connected", "remote_ip", r.RemoteAddr)

	frames := s.readLoop(room, c, log)

	s.hub.Remove(c)
	if err := room.Detach(c); err != nil && !errors.Is(err, relay.ErrRoomClosed) {
		log.Warn("ws detach failed", "err", err)
	}
	_ = c.Close(websocket.CloseNormalClosure, "")
	<-c.done

	span.SetAttributes(attribute.Int("relay.frames", frames))
	log.Debug("ws disconnected", "frames", frames)
}

// readLoop feeds inbound text frames to the room until the socket fails and
// returns how many frames were delivered.
func (s *Server) readLoop(room *relay.Room, c *wsConn, log *slog.Logger) int {
	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	deadline := func() time.Time { return time.Now().Add(2 * s.cfg.PingInterval) }
	_ = c.conn.SetReadDeadline(deadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline())
	})

	frames := 0
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("ws read failed", "err", err)
			}
			return frames
		}
		_ = c.conn.SetReadDeadline(deadline())
		if kind != websocket.TextMessage {
			continue
		}

		if err := room.Deliver(c, data); err != nil {
			_ = c.Close(websocket.CloseGoingAway, ReasonRoomClosed)
			return frames
		}
		frames++
	}
}

// Shutdown closes every open socket with a going-away close frame.
func (s *Server) Shutdown() {
	if n := s.hub.CloseAll(ReasonServerShutdown); n > 0 {
		s.log.Info("ws connections closed", "count", n)
	}
}
