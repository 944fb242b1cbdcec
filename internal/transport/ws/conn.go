package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to relay.Conn. Frames are queued and
// written by writeLoop, the only goroutine that writes to the socket.
type wsConn struct {
	id     string
	roomID string
	conn   *websocket.Conn

	send      chan []byte
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	closeCode   int
	closeReason string

	pingEvery    time.Duration
	writeTimeout time.Duration
}

func newWsConn(c *websocket.Conn, id, roomID string, cfg Config) *wsConn {
	return &wsConn{
		id:           id,
		roomID:       roomID,
		conn:         c,
		send:         make(chan []byte, cfg.SendQueue),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		pingEvery:    cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *wsConn) ID() string { return c.id }

// Send queues one text frame without blocking. A peer that cannot keep up
// is disconnected.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.closing:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		_ = c.Close(websocket.CloseTryAgainLater, ReasonSendQueueFull)
		return ErrSendQueueFull
	}
}

// Close flushes queued frames, sends a close frame with code and reason and
// closes the socket. Only the first call has an effect.
func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closing)
	})
	return nil
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		case <-c.closing:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if c.write(data) != nil {
				return
			}
		default:
			return
		}
	}
}
