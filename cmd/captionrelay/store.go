package main

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/caption-relay/config"
	"github.com/cwrk-planet/caption-relay/internal/postgres"
	"github.com/cwrk-planet/caption-relay/internal/redisstore"
	"github.com/cwrk-planet/caption-relay/internal/sqlite"
	"github.com/cwrk-planet/caption-relay/internal/storage"
)

// openStore builds the snapshot store selected by storage.driver. A
// read-only file store skips the directory lock so it can be opened while
// the relay runs.
func openStore(ctx context.Context, cfg *config.Config, readOnly bool) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), nil
	case config.DriverFile:
		open := storage.OpenFile
		if readOnly {
			open = storage.OpenFileReadOnly
		}
		f, err := open(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresConfig())
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		repo := postgres.NewSnapshotRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	case config.DriverRedis:
		rs, err := redisstore.Open(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
