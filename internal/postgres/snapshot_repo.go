package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cwrk-planet/caption-relay/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository stores room snapshots as JSONB documents.
type SnapshotRepository struct {
	db *pgxpool.Pool
}

func NewSnapshotRepository(db *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Migrate creates the snapshot table when it does not exist yet.
func (r *SnapshotRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, qCreateSnapshotTable); err != nil {
		return fmt.Errorf("create room_snapshots: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) Load(ctx context.Context, roomID string) (domain.Snapshot, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, qSelectSnapshot, roomID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, nil
		}
		return nil, err
	}

	snap := domain.Snapshot{}
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}
	return snap, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, roomID string, snap domain.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.db.Exec(ctx, qUpsertSnapshot, roomID, string(doc))
	return err
}

func (r *SnapshotRepository) Delete(ctx context.Context, roomID string) error {
	_, err := r.db.Exec(ctx, qDeleteSnapshot, roomID)
	return err
}

func (r *SnapshotRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, qListSnapshots)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SnapshotRepository) Close() error {
	r.db.Close()
	return nil
}
