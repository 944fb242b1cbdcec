package ws

import (
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks the live websocket connections of every room so they can be
// closed together on shutdown.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*wsConn]struct{} // roomID -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*wsConn]struct{})}
}

func (h *Hub) Add(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.roomID]
	if !ok {
		rs = make(map[*wsConn]struct{})
		h.rooms[c.roomID] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.roomID]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
}

// Count returns the number of open sockets in roomID.
func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CloseAll asks every tracked connection to close and returns how many
// there were.
func (h *Hub) CloseAll(reason string) int {
	h.mu.RLock()
	var conns []*wsConn
	for _, rs := range h.rooms {
		for c := range rs {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close(websocket.CloseGoingAway, reason)
	}
	return len(conns)
}
