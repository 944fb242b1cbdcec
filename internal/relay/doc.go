// Package relay is the per-room coordinator of caption rooms.
//
// Every room is one goroutine that owns all of the room's state: the
// participants keyed by device id, the registry of live connections, the
// pending join requests and the set of speaking devices. Transports hand
// frames to the room with Deliver and report closed sockets with Detach;
// both are queued on the room's inbox and handled strictly in order, as is
// the periodic heartbeat sweep. Nothing inside a room is locked.
//
// Participant snapshots are written by a separate persister goroutine that
// always saves the newest snapshot and never blocks the room.
package relay
