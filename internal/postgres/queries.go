package postgres

const (
	qCreateSnapshotTable = `
		CREATE TABLE IF NOT EXISTS room_snapshots (
			room_id    TEXT PRIMARY KEY,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	qSelectSnapshot = `SELECT doc FROM room_snapshots WHERE room_id=$1`

	qUpsertSnapshot = `
		INSERT INTO room_snapshots (room_id, doc, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (room_id) DO UPDATE
		SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`

	qDeleteSnapshot = `DELETE FROM room_snapshots WHERE room_id=$1`

	qListSnapshots = `SELECT room_id FROM room_snapshots ORDER BY room_id`
)
