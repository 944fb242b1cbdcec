package domain

import (
	"encoding/json"
	"sort"
)

// Snapshot is the persisted document of one room keyed by device id.
// Connection references are never part of it.
type Snapshot map[string]Participant

func (s Snapshot) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Snapshot) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

// Sorted returns the participants ordered by join time, then device id.
func (s Snapshot) Sorted() []Participant {
	out := make([]Participant, 0, len(s))
	for _, p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out
}
