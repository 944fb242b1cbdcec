package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleTimedOut Lifecycle = "timed_out"
	LifecycleDeclined Lifecycle = "declined"
)

func (l Lifecycle) Valid() bool {
	switch l {
	case LifecycleActive, LifecycleTimedOut, LifecycleDeclined:
		return true
	}
	return false
}

const (
	DefaultDisplayName = "Guest"
	MaxDisplayNameLen  = 64
	MaxDeviceIDLen     = 128
)

// Participant is one physical device known to a room.
type Participant struct {
	DeviceID      string    `json:"deviceUuid"`
	DisplayName   string    `json:"displayName"`
	Lifecycle     Lifecycle `json:"state"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	LastSeen      time.Time `json:"lastSeen"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// NormalizeDisplayName returns the NFC form of name, trimmed and capped at
// MaxDisplayNameLen runes. Empty names fall back to DefaultDisplayName.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		name = string([]rune(name)[:MaxDisplayNameLen])
	}
	return name
}

// ValidDeviceID reports whether id can be used as a participant key.
func ValidDeviceID(id string) bool {
	return id != "" && len(id) <= MaxDeviceIDLen && strings.TrimSpace(id) == id
}
