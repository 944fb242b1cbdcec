// Package redisstore keeps room snapshots as JSON values in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cwrk-planet/caption-relay/internal/domain"

	"github.com/go-redis/redis/v8"
)

const DefaultKeyPrefix = "caption-relay:room:"

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires snapshots of rooms nobody touched for a while; zero keeps them.
	TTL time.Duration
}

type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("storage.redis.addr is required for the redis driver")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client, cfg.KeyPrefix, cfg.TTL), nil
}

func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(roomID string) string { return s.prefix + roomID }

func (s *Store) Load(ctx context.Context, roomID string) (domain.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Snapshot{}, nil
		}
		return nil, err
	}

	snap := domain.Snapshot{}
	if err := snap.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotCorrupt, err)
	}
	return snap, nil
}

func (s *Store) Save(ctx context.Context, roomID string, snap domain.Snapshot) error {
	return s.client.Set(ctx, s.key(roomID), snap, s.ttl).Err()
}

func (s *Store) Delete(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, s.key(roomID)).Err()
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
