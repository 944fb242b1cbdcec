package ws

import "errors"

// Close reasons sent by the server.
const (
	ReasonUnauthorized    = "unauthorized"
	ReasonRoomUnavailable = "room unavailable"
	ReasonRoomClosed      = "room closed"
	ReasonSendQueueFull   = "send queue overflow"
	ReasonServerShutdown  = "server shutting down"
)

var (
	ErrConnClosed    = errors.New("ws: connection closed")
	ErrSendQueueFull = errors.New("ws: send queue full")
)
