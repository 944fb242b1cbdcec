package relay

// Close codes used when the coordinator closes a connection.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Conn is a handle to a live client transport. Send must not block: the
// transport queues the frame or returns an error. When the underlying
// socket goes away the transport calls Room.Detach.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close(code int, reason string) error
}
