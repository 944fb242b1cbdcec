package relay

import (
	"strings"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

// handleJoin decides whether the joining device is admitted right away or
// has to wait for an active participant to approve it.
func (r *Room) handleJoin(c Conn, in inbound) {
	deviceID := strings.TrimSpace(in.DeviceUUID)
	if !domain.ValidDeviceID(deviceID) {
		r.log.Warn("join without valid device id dropped", "conn", c.ID())
		return
	}
	name := domain.NormalizeDisplayName(in.DisplayName)

	// The connection may have stood for another device or request before.
	if prev, ok := r.registry.device(c); ok && prev != deviceID {
		r.registry.unbindConn(c)
		delete(r.speaking, prev)
	}
	if req := r.requestByConn(c); req != nil && req.deviceID != deviceID {
		r.cancelRequest(req, ReasonCancelled)
	}

	p, known := r.get(deviceID)
	switch {
	case known && p.Lifecycle == domain.LifecycleActive:
		r.admit(c, deviceID, name, "rejoin")
	case known && p.Lifecycle == domain.LifecycleTimedOut:
		r.admit(c, deviceID, name, "returning")
	case r.activeCount() == 0:
		r.admit(c, deviceID, name, "empty_room")
	default:
		r.requestJoin(c, deviceID, name)
	}
}

func (r *Room) admit(c Conn, deviceID, name, why string) {
	delete(r.requests, deviceID)
	r.upsert(deviceID, name, domain.LifecycleActive, c)
	r.log.Info("participant admitted", "device", deviceID, "conn", c.ID(), "reason", why)
	r.broadcastRoomState()
}

func (r *Room) requestJoin(c Conn, deviceID, name string) {
	req, ok := r.requests[deviceID]
	if ok {
		req.conn = c
		req.name = name
	} else {
		req = &joinRequest{deviceID: deviceID, name: name, conn: c, requestedAt: r.now()}
		r.requests[deviceID] = req
	}
	r.log.Info("join request pending", "device", deviceID, "conn", c.ID(), "refreshed", ok)

	r.send(c, AwaitingApprovalMessage{
		Type:       TypeAwaitingApproval,
		RoomID:     r.id,
		DeviceUUID: deviceID,
	})
	r.broadcast(JoinRequestMessage{
		Type:          TypeJoinRequest,
		RequesterID:   deviceID,
		RequesterName: name,
		RequestedAt:   req.requestedAt.UnixMilli(),
	}, nil)
}

func (r *Room) handleApprove(approver *participant, in inbound) {
	req, ok := r.requests[in.RequesterID]
	if !ok {
		r.log.Debug("approve for unknown request ignored", "requester", in.RequesterID)
		return
	}
	delete(r.requests, req.deviceID)

	r.upsert(req.deviceID, req.name, domain.LifecycleActive, req.conn)
	r.log.Info("join approved", "device", req.deviceID, "by", approver.DeviceID)

	r.broadcast(JoinApprovedMessage{
		Type:           TypeJoinApproved,
		RoomID:         r.id,
		RequesterID:    req.deviceID,
		RequesterName:  req.name,
		ApprovedBy:     approver.DeviceID,
		ApprovedByName: approver.DisplayName,
	}, nil)
	r.broadcastRoomState()
}

func (r *Room) handleDecline(decliner *participant, in inbound) {
	req, ok := r.requests[in.RequesterID]
	if !ok {
		r.log.Debug("decline for unknown request ignored", "requester", in.RequesterID)
		return
	}
	delete(r.requests, req.deviceID)

	r.upsert(req.deviceID, req.name, domain.LifecycleDeclined, nil)
	r.log.Info("join declined", "device", req.deviceID, "by", decliner.DeviceID)

	r.send(req.conn, JoinDeniedMessage{Type: TypeJoinDenied, RoomID: r.id, Reason: ReasonDeclined})
	r.broadcast(JoinDeclinedMessage{
		Type:           TypeJoinDeclined,
		RequesterID:    req.deviceID,
		RequesterName:  req.name,
		DeclinedBy:     decliner.DeviceID,
		DeclinedByName: decliner.DisplayName,
	}, nil)
	r.broadcastRoomState()
}

func (r *Room) handleCancelJoin(c Conn) {
	req := r.requestByConn(c)
	if req == nil {
		return
	}
	r.cancelRequest(req, ReasonCancelled)
}

// cancelRequest drops a pending request without touching the lifecycle of
// the requester.
func (r *Room) cancelRequest(req *joinRequest, reason string) {
	delete(r.requests, req.deviceID)
	r.log.Info("join request cancelled", "device", req.deviceID, "reason", reason)
	r.broadcast(JoinCancelledMessage{
		Type:          TypeJoinCancelled,
		RequesterID:   req.deviceID,
		RequesterName: req.name,
		Reason:        reason,
	}, nil)
}

func (r *Room) requestByConn(c Conn) *joinRequest {
	for _, req := range r.requests {
		if req.conn == c {
			return req
		}
	}
	return nil
}

// handleRemove declines a participant on behalf of a peer and drops its
// live connection.
func (r *Room) handleRemove(remover *participant, in inbound) {
	target := strings.TrimSpace(in.ParticipantID)
	if target == "" || target == remover.DeviceID {
		return
	}
	if _, ok := r.get(target); !ok {
		r.log.Debug("remove for unknown participant ignored", "device", target)
		return
	}

	delete(r.requests, target)
	delete(r.speaking, target)
	conn, connected := r.registry.unbindDevice(target)
	r.upsert(target, "", domain.LifecycleDeclined, nil)
	r.log.Info("participant removed", "device", target, "by", remover.DeviceID)

	if connected {
		r.send(conn, JoinDeniedMessage{Type: TypeJoinDenied, RoomID: r.id, Reason: ReasonRemoved})
		_ = conn.Close(CloseNormal, "removed from room")
	}
	r.broadcastRoomState()
}

// expireRequests denies requests older than the configured TTL and reports
// whether any expired.
func (r *Room) expireRequests() bool {
	now := r.now()
	expired := false
	for id, req := range r.requests {
		if now.Sub(req.requestedAt) <= r.cfg.JoinRequestTTL {
			continue
		}
		delete(r.requests, id)
		expired = true
		r.log.Info("join request expired", "device", id)

		r.send(req.conn, JoinDeniedMessage{Type: TypeJoinDenied, RoomID: r.id, Reason: ReasonTimeout})
		r.broadcast(JoinCancelledMessage{
			Type:          TypeJoinCancelled,
			RequesterID:   id,
			RequesterName: req.name,
			Reason:        ReasonTimeout,
		}, nil)
	}
	return expired
}
