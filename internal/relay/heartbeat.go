package relay

import (
	"sort"
	"strings"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

// sweep demotes active participants whose last heartbeat is older than the
// timeout and expires stale join requests. A demoted speaker is announced
// with speakerStopped. Demotions are persisted and broadcast once per sweep.
func (r *Room) sweep() {
	now := r.now()

	var demoted, silenced []string
	for id, p := range r.participants {
		if p.Lifecycle != domain.LifecycleActive {
			continue
		}
		if now.Sub(p.LastHeartbeat) <= r.cfg.HeartbeatTimeout {
			continue
		}
		p.Lifecycle = domain.LifecycleTimedOut
		r.registry.unbindDevice(id)
		if _, ok := r.speaking[id]; ok {
			delete(r.speaking, id)
			silenced = append(silenced, id)
		}
		demoted = append(demoted, id)
	}

	expired := r.expireRequests()

	if len(demoted) > 0 {
		sort.Strings(demoted)
		r.log.Info("participants timed out", "devices", demoted)
		r.persist()
	}
	sort.Strings(silenced)
	for _, id := range silenced {
		r.broadcast(SpeakerMessage{
			Type:      TypeSpeakerStopped,
			SpeakerID: id,
			Action:    actionStop,
			Timestamp: now.UnixMilli(),
		}, nil)
	}
	if len(demoted) > 0 || expired {
		r.broadcastRoomState()
	}
}

// handleHeartbeat refreshes the sender's liveness and relays the heartbeat
// to the whole room. A heartbeat on an unregistered connection that names an
// active device re-binds the connection to it.
func (r *Room) handleHeartbeat(c Conn, in inbound) {
	deviceID, ok := r.registry.device(c)
	if !ok {
		claimed := strings.TrimSpace(in.ParticipantID)
		p, known := r.get(claimed)
		if claimed == "" || !known || p.Lifecycle != domain.LifecycleActive {
			r.log.Debug("heartbeat from unknown connection dropped", "conn", c.ID(), "participant", claimed)
			return
		}
		deviceID = claimed
		r.log.Info("connection repaired by heartbeat", "device", deviceID, "conn", c.ID())
	}

	// Binding through upsert also displaces a stale connection of the device.
	p := r.upsert(deviceID, "", domain.LifecycleActive, c)

	r.broadcast(HeartbeatMessage{
		Type:            TypeHeartbeat,
		ParticipantID:   deviceID,
		ParticipantName: p.DisplayName,
		IsPressed:       in.IsPressed,
		CurrentText:     r.clip(in.CurrentText),
		IsTexting:       in.IsTexting,
		ClientTimestamp: in.Timestamp,
		Timestamp:       r.now().UnixMilli(),
	}, nil)
}
