package domain

import "strings"

const MaxRoomCodeLen = 32

// NormalizeRoomCode upper-cases and trims a client supplied room code.
// Codes may only contain A-Z, 0-9, '-' and '_'.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || len(code) > MaxRoomCodeLen {
		return "", ErrInvalidRoomCode
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", ErrInvalidRoomCode
		}
	}
	return code, nil
}

// RoomStatus is the summary answered to checkRoom and the status endpoints.
type RoomStatus struct {
	RoomID           string `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
	ActiveCount      int    `json:"activeCount"`
	TimedOutCount    int    `json:"timedOutCount"`
	DeclinedCount    int    `json:"declinedCount"`
	PendingCount     int    `json:"pendingCount"`
	ConnectedCount   int    `json:"connectedCount"`
	IsEmpty          bool   `json:"isEmpty"`
}
