package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/caption-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "relay", "snapshots.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	empty, err := s.Load(ctx, "TALK47")
	require.NoError(t, err)
	assert.Empty(t, empty)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, "TALK47", domain.Snapshot{
		"A1": {DeviceID: "A1", DisplayName: "Ann", Lifecycle: domain.LifecycleActive, LastHeartbeat: ts, LastSeen: ts, JoinedAt: ts},
	}))
	require.NoError(t, s.Save(ctx, "TALK47", domain.Snapshot{
		"A1": {DeviceID: "A1", DisplayName: "Ann", Lifecycle: domain.LifecycleTimedOut, LastHeartbeat: ts, LastSeen: ts, JoinedAt: ts},
		"B1": {DeviceID: "B1", DisplayName: "Bob", Lifecycle: domain.LifecycleActive, LastHeartbeat: ts, LastSeen: ts, JoinedAt: ts},
	}))

	got, err := s.Load(ctx, "TALK47")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.LifecycleTimedOut, got["A1"].Lifecycle)
	assert.True(t, ts.Equal(got["B1"].JoinedAt))

	rooms, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"TALK47"}, rooms)

	require.NoError(t, s.Delete(ctx, "TALK47"))
	rooms, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryOnBusy(context.Background(), func() error {
		calls++
		return errors.New("syntax error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
