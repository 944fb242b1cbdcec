package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

type Memory struct {
	mu     sync.RWMutex
	rooms  map[string]domain.Snapshot
	closed bool
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]domain.Snapshot)}
}

func (m *Memory) Load(_ context.Context, roomID string) (domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return Clone(m.rooms[roomID]), nil
}

func (m *Memory) Save(_ context.Context, roomID string, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rooms[roomID] = Clone(snap)
	return nil
}

func (m *Memory) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
