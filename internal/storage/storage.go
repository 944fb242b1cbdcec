// Package storage defines the snapshot store used to persist room
// participants, with in-memory and file backed implementations.
package storage

import (
	"context"
	"errors"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

var (
	ErrLocked   = errors.New("snapshot directory is locked by another process")
	ErrClosed   = errors.New("snapshot store is closed")
	ErrReadOnly = errors.New("snapshot store is read-only")
)

// Store saves and loads one snapshot document per room. Load of an unknown
// room returns an empty snapshot and no error.
type Store interface {
	Load(ctx context.Context, roomID string) (domain.Snapshot, error)
	Save(ctx context.Context, roomID string, snap domain.Snapshot) error
	Delete(ctx context.Context, roomID string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Clone returns a deep copy of snap that is safe to hand to another goroutine.
func Clone(snap domain.Snapshot) domain.Snapshot {
	out := make(domain.Snapshot, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out
}
