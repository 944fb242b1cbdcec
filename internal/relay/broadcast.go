package relay

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

// broadcast sends msg to every registered connection except exclude and
// returns how many sends succeeded. A failing recipient is logged and
// skipped.
func (r *Room) broadcast(msg any, exclude Conn) int {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("broadcast encode failed", slog.Any("err", err))
		return 0
	}

	sent := 0
	for _, c := range r.registry.conns() {
		if exclude != nil && c == exclude {
			continue
		}
		if err := c.Send(data); err != nil {
			r.log.Warn("broadcast send failed", slog.String("conn", c.ID()), slog.Any("err", err))
			continue
		}
		sent++
	}
	return sent
}

// send delivers msg to a single connection, which need not be registered.
func (r *Room) send(c Conn, msg any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("send encode failed", slog.Any("err", err))
		return
	}
	if err := c.Send(data); err != nil {
		r.log.Warn("send failed", slog.String("conn", c.ID()), slog.Any("err", err))
	}
}

func (r *Room) broadcastRoomState() {
	r.broadcast(r.roomState(), nil)
}

func (r *Room) roomState() RoomStateMessage {
	parts := RoomParticipants{
		Active:   []ParticipantView{},
		TimedOut: []ParticipantView{},
		Declined: []ParticipantView{},
	}
	for _, p := range r.snapshot().Sorted() {
		_, connected := r.registry.conn(p.DeviceID)
		_, speaking := r.speaking[p.DeviceID]
		v := ParticipantView{
			ID:            p.DeviceID,
			Name:          p.DisplayName,
			State:         p.Lifecycle,
			JoinedAt:      unixMilli(p.JoinedAt),
			LastSeen:      unixMilli(p.LastSeen),
			LastHeartbeat: unixMilli(p.LastHeartbeat),
			IsConnected:   connected,
			IsSpeaking:    speaking,
		}
		switch p.Lifecycle {
		case domain.LifecycleActive:
			parts.Active = append(parts.Active, v)
		case domain.LifecycleTimedOut:
			parts.TimedOut = append(parts.TimedOut, v)
		case domain.LifecycleDeclined:
			parts.Declined = append(parts.Declined, v)
		}
	}

	pending := make([]PendingView, 0, len(r.requests))
	for _, req := range r.requests {
		pending = append(pending, PendingView{
			RequesterID:   req.deviceID,
			RequesterName: req.name,
			RequestedAt:   req.requestedAt.UnixMilli(),
		})
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RequestedAt < pending[j].RequestedAt ||
			(pending[i].RequestedAt == pending[j].RequestedAt && pending[i].RequesterID < pending[j].RequesterID)
	})

	return RoomStateMessage{
		Type:            TypeRoomState,
		Participants:    parts,
		PendingRequests: pending,
		ConcurrentMode:  true,
		RoomID:          r.id,
		Timestamp:       r.now().UnixMilli(),
	}
}
