package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwrk-planet/caption-relay/internal/domain"
)

type participant struct {
	domain.Participant
}

func (r *Room) get(deviceID string) (*participant, bool) {
	p, ok := r.participants[deviceID]
	return p, ok
}

// upsert creates or updates a participant and schedules a snapshot write.
// LastSeen is always refreshed, LastHeartbeat only for active participants.
// An empty name keeps the current one. A non-nil conn is bound to the
// device; a connection it displaces is closed.
func (r *Room) upsert(deviceID, name string, lc domain.Lifecycle, conn Conn) *participant {
	now := r.now()
	p, ok := r.participants[deviceID]
	if !ok {
		p = &participant{Participant: domain.Participant{
			DeviceID:    deviceID,
			DisplayName: domain.DefaultDisplayName,
			JoinedAt:    now,
		}}
		r.participants[deviceID] = p
	}
	if name != "" {
		p.DisplayName = name
	}
	p.Lifecycle = lc
	p.LastSeen = now
	if lc == domain.LifecycleActive {
		p.LastHeartbeat = now
	}

	if conn != nil {
		if old := r.registry.bind(deviceID, conn); old != nil {
			r.log.Info("connection replaced", "device", deviceID, "old_conn", old.ID(), "conn", conn.ID())
			_ = old.Close(CloseNormal, "session replaced")
		}
	}

	r.persist()
	return p
}

func (r *Room) activeCount() int {
	n := 0
	for _, p := range r.participants {
		if p.Lifecycle == domain.LifecycleActive {
			n++
		}
	}
	return n
}

// loadSnapshot restores participants from the store. Nobody can still be
// connected after a restart, so active entries come back as timed_out.
func (r *Room) loadSnapshot(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PersistTimeout)
	defer cancel()

	snap, err := r.store.Load(ctx, r.id)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", r.id, err)
	}

	coerced := 0
	for id, p := range snap {
		if !domain.ValidDeviceID(id) {
			r.log.Warn("snapshot entry skipped", "device", id)
			continue
		}
		p.DeviceID = id
		if p.Lifecycle == domain.LifecycleActive || !p.Lifecycle.Valid() {
			p.Lifecycle = domain.LifecycleTimedOut
			coerced++
		}
		r.participants[id] = &participant{Participant: p}
	}

	r.log.Debug("snapshot loaded", "participants", len(r.participants), "coerced", coerced)
	if coerced > 0 {
		r.persist()
	}
	return nil
}

func (r *Room) snapshot() domain.Snapshot {
	snap := make(domain.Snapshot, len(r.participants))
	for id, p := range r.participants {
		snap[id] = p.Participant
	}
	return snap
}

// persist hands the current snapshot to the persister. An older snapshot
// still waiting in the slot is replaced.
func (r *Room) persist() {
	snap := r.snapshot()
	select {
	case <-r.saves:
	default:
	}
	r.saves <- snap
}

func (r *Room) persistLoop() {
	defer close(r.persistDone)
	for snap := range r.saves {
		r.saveSnapshot(snap)
	}
}

func (r *Room) saveSnapshot(snap domain.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()

	if err := r.store.Save(ctx, r.id, snap); err != nil {
		r.log.Warn("snapshot save failed", slog.Any("err", err), slog.Int("participants", len(snap)))
		return
	}
	r.log.Debug("snapshot saved", slog.Int("participants", len(snap)))
}
