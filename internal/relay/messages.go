package relay

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

// Client -> server message types.
const (
	TypeCheckRoom         = "checkRoom"
	TypeJoin              = "join"
	TypeRequestSpeak      = "requestSpeak"
	TypeStopSpeak         = "stopSpeak"
	TypeCaption           = "caption"
	TypeButtonPressed     = "buttonPressed"
	TypeButtonReleased    = "buttonReleased"
	TypeHeartbeat         = "heartbeat"
	TypeApproveJoin       = "approveJoin"
	TypeDeclineJoin       = "declineJoin"
	TypeCancelJoin        = "cancelJoin"
	TypeRemoveParticipant = "removeParticipant"
	TypeLiveSTT           = "liveSTT"
	TypeLiveTextContent   = "liveTextContent"
	TypeLiveTextingStatus = "liveTextingStatus"
)

// Server -> client message types. caption, heartbeat, button and live
// types are shared with the client side.
const (
	TypeRoomState        = "roomState"
	TypeRoomStatus       = "roomStatus"
	TypeAwaitingApproval = "awaitingApproval"
	TypeJoinRequest      = "joinRequest"
	TypeJoinApproved     = "joinApproved"
	TypeJoinDenied       = "joinDenied"
	TypeJoinDeclined     = "joinDeclined"
	TypeJoinCancelled    = "joinCancelled"
	TypeSpeakerChanged   = "speakerChanged"
	TypeSpeakerStopped   = "speakerStopped"
)

// Reasons carried by joinDenied and joinCancelled.
const (
	ReasonDeclined     = "declined"
	ReasonTimeout      = "timeout"
	ReasonRemoved      = "removed"
	ReasonCancelled    = "cancelled"
	ReasonDisconnected = "disconnected"
)

const (
	actionStart = "start"
	actionStop  = "stop"
)

// inbound is the union of every client frame. Fields a type does not use
// stay zero.
type inbound struct {
	Type string `json:"type"`

	DeviceUUID  string `json:"deviceUuid"`
	DisplayName string `json:"displayName"`

	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"isFinal"`

	ParticipantID string          `json:"participantId"`
	IsPressed     bool            `json:"isPressed"`
	CurrentText   string          `json:"currentText"`
	IsTexting     bool            `json:"isTexting"`
	Timestamp     json.RawMessage `json:"timestamp"`

	RequesterID string `json:"requesterId"`
}

type ParticipantView struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	State         domain.Lifecycle `json:"state"`
	JoinedAt      int64            `json:"joinedAt"`
	LastSeen      int64            `json:"lastSeen"`
	LastHeartbeat int64            `json:"lastHeartbeat"`
	IsConnected   bool             `json:"isConnected"`
	IsSpeaking    bool             `json:"isSpeaking"`
}

type RoomParticipants struct {
	Active   []ParticipantView `json:"active"`
	TimedOut []ParticipantView `json:"timedOut"`
	Declined []ParticipantView `json:"declined"`
}

type PendingView struct {
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	RequestedAt   int64  `json:"requestedAt"`
}

type RoomStateMessage struct {
	Type            string           `json:"type"`
	Participants    RoomParticipants `json:"participants"`
	PendingRequests []PendingView    `json:"pendingRequests"`
	ConcurrentMode  bool             `json:"concurrentMode"`
	RoomID          string           `json:"roomId"`
	Timestamp       int64            `json:"timestamp"`
}

type RoomStatusMessage struct {
	Type string `json:"type"`
	domain.RoomStatus
	Timestamp int64 `json:"timestamp"`
}

type AwaitingApprovalMessage struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	DeviceUUID string `json:"deviceUuid"`
}

type JoinRequestMessage struct {
	Type          string `json:"type"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	RequestedAt   int64  `json:"requestedAt"`
}

type JoinApprovedMessage struct {
	Type           string `json:"type"`
	RoomID         string `json:"roomId"`
	RequesterID    string `json:"requesterId"`
	RequesterName  string `json:"requesterName"`
	ApprovedBy     string `json:"approvedBy"`
	ApprovedByName string `json:"approvedByName"`
}

type JoinDeniedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type JoinDeclinedMessage struct {
	Type           string `json:"type"`
	RequesterID    string `json:"requesterId"`
	RequesterName  string `json:"requesterName"`
	DeclinedBy     string `json:"declinedBy"`
	DeclinedByName string `json:"declinedByName"`
}

type JoinCancelledMessage struct {
	Type          string `json:"type"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	Reason        string `json:"reason"`
}

type SpeakerMessage struct {
	Type        string `json:"type"`
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName,omitempty"`
	Action      string `json:"action"`
	Timestamp   int64  `json:"timestamp"`
}

type CaptionMessage struct {
	Type        string `json:"type"`
	MessageID   string `json:"messageId"`
	SpeakerID   string `json:"speakerId"`
	SpeakerName string `json:"speakerName"`
	Text        string `json:"text"`
	IsFinal     bool   `json:"isFinal"`
	Timestamp   int64  `json:"timestamp"`
}

type HeartbeatMessage struct {
	Type            string          `json:"type"`
	ParticipantID   string          `json:"participantId"`
	ParticipantName string          `json:"participantName"`
	IsPressed       bool            `json:"isPressed"`
	CurrentText     string          `json:"currentText"`
	IsTexting       bool            `json:"isTexting"`
	ClientTimestamp json.RawMessage `json:"clientTimestamp,omitempty"`
	Timestamp       int64           `json:"timestamp"`
}

// PresenceMessage carries buttonPressed, buttonReleased and the live text
// family. Text and IsTexting are set depending on Type.
type PresenceMessage struct {
	Type            string  `json:"type"`
	ParticipantID   string  `json:"participantId"`
	ParticipantName string  `json:"participantName"`
	Text            *string `json:"text,omitempty"`
	IsTexting       *bool   `json:"isTexting,omitempty"`
	Timestamp       int64   `json:"timestamp"`
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
