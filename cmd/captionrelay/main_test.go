package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/caption-relay/internal/domain"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

// seedFileStore writes snapshots into a fresh file store and returns a config
// file pointing at it.
func seedFileStore(t *testing.T, rooms map[string]domain.Snapshot) string {
	t.Helper()
	t.Setenv("RELAY_ACCESS_SECRET", "")

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "rooms")
	store, err := storage.OpenFile(dataDir)
	require.NoError(t, err)
	for room, snap := range rooms {
		require.NoError(t, store.Save(context.Background(), room, snap))
	}
	require.NoError(t, store.Close())

	cfgPath := filepath.Join(dir, "relay.yaml")
	body := "http:\n  addr: \":0\"\nstorage:\n  driver: file\n  dir: " + dataDir + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleRoom() domain.Snapshot {
	joined := time.Now().Add(-time.Hour).UTC()
	return domain.Snapshot{
		"A1": {DeviceID: "A1", DisplayName: "Alice", Lifecycle: domain.LifecycleActive, JoinedAt: joined, LastHeartbeat: joined.Add(30 * time.Minute)},
		"B1": {DeviceID: "B1", DisplayName: "Bob", Lifecycle: domain.LifecycleTimedOut, JoinedAt: joined.Add(time.Minute)},
	}
}

func TestSnapshotShow_Table(t *testing.T) {
	cfg := seedFileStore(t, map[string]domain.Snapshot{"TALK47": sampleRoom()})

	out, err := runCLI(t, "-c", cfg, "snapshot", "show", "talk47")
	require.NoError(t, err)

	assert.Contains(t, out, "TALK47")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "timed_out")
	assert.Contains(t, out, "never")
	assert.Less(t, bytes.Index([]byte(out), []byte("A1")), bytes.Index([]byte(out), []byte("B1")))
}

func TestSnapshotShow_JSON(t *testing.T) {
	cfg := seedFileStore(t, map[string]domain.Snapshot{"TALK47": sampleRoom()})

	out, err := runCLI(t, "-c", cfg, "snapshot", "show", "TALK47", "--json")
	require.NoError(t, err)

	var got domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, 2)
	assert.Equal(t, "Bob", got["B1"].DisplayName)
}

func TestSnapshotShow_EmptyRoom(t *testing.T) {
	cfg := seedFileStore(t, nil)

	out, err := runCLI(t, "-c", cfg, "snapshot", "show", "NOPE")
	require.NoError(t, err)
	assert.Contains(t, out, "no participants")
}

func TestSnapshotShow_InvalidCode(t *testing.T) {
	cfg := seedFileStore(t, nil)

	_, err := runCLI(t, "-c", cfg, "snapshot", "show", "bad code!")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomCode)
}

func TestSnapshotListAndPurge(t *testing.T) {
	cfg := seedFileStore(t, map[string]domain.Snapshot{
		"ROOM1": sampleRoom(),
		"ROOM2": sampleRoom(),
	})

	out, err := runCLI(t, "-c", cfg, "snapshot", "list")
	require.NoError(t, err)
	assert.Equal(t, "ROOM1\nROOM2\n", out)

	out, err = runCLI(t, "-c", cfg, "snapshot", "purge", "room1")
	require.NoError(t, err)
	assert.Equal(t, "Purged ROOM1\n", out)

	out, err = runCLI(t, "-c", cfg, "snapshot", "list")
	require.NoError(t, err)
	assert.Equal(t, "ROOM2\n", out)
}

func TestRoot_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "-c", filepath.Join(t.TempDir(), "absent.yaml"), "snapshot", "list")
	require.Error(t, err)
}

func TestSnapshotReadsWhileRelayHoldsLock(t *testing.T) {
	cfg := seedFileStore(t, map[string]domain.Snapshot{"TALK47": sampleRoom()})
	running, err := storage.OpenFile(filepath.Join(filepath.Dir(cfg), "rooms"))
	require.NoError(t, err)
	defer running.Close()

	out, err := runCLI(t, "-c", cfg, "snapshot", "list")
	require.NoError(t, err)
	assert.Equal(t, "TALK47\n", out)

	out, err = runCLI(t, "-c", cfg, "snapshot", "show", "TALK47")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")

	_, err = runCLI(t, "-c", cfg, "snapshot", "purge", "TALK47")
	assert.ErrorIs(t, err, storage.ErrLocked)
}
