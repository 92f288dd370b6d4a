// Package redis provides a Redis-backed snapshot store. Snapshots are a
// rebuildable cache, which makes Redis a natural home for them: losing a key
// only costs replay time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tidemark/eventsource"
)

// SnapshotStore stores one snapshot per aggregate as a JSON value under
// <prefix>:<aggregateID>.
type SnapshotStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// Option configures a SnapshotStore.
type Option func(*SnapshotStore)

// WithKeyPrefix overrides the default "snapshot" key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *SnapshotStore) {
		s.keyPrefix = prefix
	}
}

// WithTTL expires snapshots after d. Zero means no expiry.
func WithTTL(d time.Duration) Option {
	return func(s *SnapshotStore) {
		s.ttl = d
	}
}

// NewSnapshotStore creates a snapshot store on client.
func NewSnapshotStore(client redis.UniversalClient, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		client:    client,
		keyPrefix: "snapshot",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot *eventsource.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot for aggregate %q: %w", snapshot.AggregateID, err)
	}
	if err := s.client.Set(ctx, s.key(snapshot.AggregateID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot for aggregate %q: %w", snapshot.AggregateID, err)
	}
	return nil
}

func (s *SnapshotStore) GetSnapshot(ctx context.Context, aggregateID string) (*eventsource.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(aggregateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, eventsource.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for aggregate %q: %w", aggregateID, err)
	}

	var snapshot eventsource.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for aggregate %q: %w", aggregateID, err)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) DeleteSnapshots(ctx context.Context, aggregateID string) error {
	if err := s.client.Del(ctx, s.key(aggregateID)).Err(); err != nil {
		return fmt.Errorf("delete snapshots for aggregate %q: %w", aggregateID, err)
	}
	return nil
}

func (s *SnapshotStore) key(aggregateID string) string {
	return s.keyPrefix + ":" + aggregateID
}

var _ eventsource.SnapshotStore = (*SnapshotStore)(nil)
