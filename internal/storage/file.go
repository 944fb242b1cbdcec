package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cwrk-planet/caption-relay/internal/domain"

	"github.com/gofrs/flock"
)

const (
	snapshotExt  = ".json"
	lockFileName = ".relay.lock"
)

// File keeps one JSON document per room inside dir. The directory is
// guarded by a lock file so two relays never write the same snapshots.
type File struct {
	dir  string
	lock *flock.Flock // nil when read-only
	mu   sync.Mutex
}

func OpenFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage.dir is required for the file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire snapshot lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &File{dir: dir, lock: lock}, nil
}

// OpenFileReadOnly opens dir for Load and List without taking the lock, so
// it works next to a running relay. Snapshots are replaced by rename, so a
// reader never sees a partial document.
func OpenFileReadOnly(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage.dir is required for the file driver")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open snapshot dir: %s is not a directory", dir)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(roomID string) string {
	return filepath.Join(f.dir, roomID+snapshotExt)
}

func (f *File) Load(_ context.Context, roomID string) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(roomID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return domain.Snapshot{}, nil
	}

	snap := domain.Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}
	return snap, nil
}

func (f *File) Save(_ context.Context, roomID string, snap domain.Snapshot) error {
	if f.lock == nil {
		return ErrReadOnly
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, roomID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path(roomID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, roomID string) error {
	if f.lock == nil {
		return ErrReadOnly
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(roomID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (f *File) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		out = append(out, strings.TrimSuffix(name, snapshotExt))
	}
	sort.Strings(out)
	return out, nil
}

func (f *File) Close() error {
	if f.lock == nil {
		return nil
	}
	return f.lock.Unlock()
}
