package relay

import (
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
)

func (r *Room) handleFrame(c Conn, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		r.log.Debug("malformed message dropped", slog.String("conn", c.ID()), slog.Any("err", err))
		return
	}

	switch in.Type {
	case TypeCheckRoom:
		r.send(c, RoomStatusMessage{Type: TypeRoomStatus, RoomStatus: r.status(), Timestamp: r.now().UnixMilli()})
	case TypeJoin:
		r.handleJoin(c, in)
	case TypeCancelJoin:
		r.handleCancelJoin(c)
	case TypeHeartbeat:
		r.handleHeartbeat(c, in)
	case TypeRequestSpeak, TypeStopSpeak, TypeCaption,
		TypeButtonPressed, TypeButtonReleased,
		TypeApproveJoin, TypeDeclineJoin, TypeRemoveParticipant,
		TypeLiveSTT, TypeLiveTextContent, TypeLiveTextingStatus:
		deviceID, ok := r.registry.device(c)
		if !ok {
			r.log.Debug("message from unadmitted connection dropped", "conn", c.ID(), "type", in.Type)
			return
		}
		p, _ := r.get(deviceID)
		r.handleAdmitted(c, p, in)
	default:
		r.log.Warn("unknown message type dropped", "conn", c.ID(), "type", in.Type)
	}
}

func (r *Room) handleAdmitted(c Conn, p *participant, in inbound) {
	now := r.now().UnixMilli()

	switch in.Type {
	case TypeApproveJoin:
		r.handleApprove(p, in)
	case TypeDeclineJoin:
		r.handleDecline(p, in)
	case TypeRemoveParticipant:
		r.handleRemove(p, in)

	case TypeRequestSpeak:
		r.speaking[p.DeviceID] = struct{}{}
		r.broadcast(SpeakerMessage{
			Type:        TypeSpeakerChanged,
			SpeakerID:   p.DeviceID,
			SpeakerName: p.DisplayName,
			Action:      actionStart,
			Timestamp:   now,
		}, c)
	case TypeStopSpeak:
		delete(r.speaking, p.DeviceID)
		r.broadcast(SpeakerMessage{
			Type:      TypeSpeakerStopped,
			SpeakerID: p.DeviceID,
			Action:    actionStop,
			Timestamp: now,
		}, c)

	case TypeCaption:
		if !r.textFits(in.Text) {
			r.log.Warn("oversized caption dropped", "device", p.DeviceID, "runes", utf8.RuneCountInString(in.Text))
			return
		}
		msgID := in.MessageID
		if msgID == "" {
			msgID = uuid.NewString()
		}
		r.broadcast(CaptionMessage{
			Type:        TypeCaption,
			MessageID:   msgID,
			SpeakerID:   p.DeviceID,
			SpeakerName: p.DisplayName,
			Text:        in.Text,
			IsFinal:     in.IsFinal,
			Timestamp:   now,
		}, c)

	case TypeButtonPressed, TypeButtonReleased:
		r.broadcast(PresenceMessage{
			Type:            in.Type,
			ParticipantID:   p.DeviceID,
			ParticipantName: p.DisplayName,
			Timestamp:       now,
		}, c)
	case TypeLiveSTT, TypeLiveTextContent:
		if !r.textFits(in.Text) {
			r.log.Warn("oversized live text dropped", "device", p.DeviceID, "type", in.Type)
			return
		}
		text := in.Text
		r.broadcast(PresenceMessage{
			Type:            in.Type,
			ParticipantID:   p.DeviceID,
			ParticipantName: p.DisplayName,
			Text:            &text,
			Timestamp:       now,
		}, c)
	case TypeLiveTextingStatus:
		texting := in.IsTexting
		r.broadcast(PresenceMessage{
			Type:            in.Type,
			ParticipantID:   p.DeviceID,
			ParticipantName: p.DisplayName,
			IsTexting:       &texting,
			Timestamp:       now,
		}, c)
	}
}

func (r *Room) textFits(s string) bool {
	return utf8.RuneCountInString(s) <= r.cfg.MaxTextLength
}

// clip trims s to the configured text limit.
func (r *Room) clip(s string) string {
	if r.textFits(s) {
		return s
	}
	return string([]rune(s)[:r.cfg.MaxTextLength])
}
