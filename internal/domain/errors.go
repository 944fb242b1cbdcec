package domain

import "errors"

var (
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrRoomClosed      = errors.New("room is closed")
	ErrSnapshotCorrupt = errors.New("snapshot is corrupt")
)
