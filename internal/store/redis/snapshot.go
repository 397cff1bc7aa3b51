package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tidemark/internal/feed"
	"tidemark/internal/indicator"
	"tidemark/internal/market"
)

// SnapshotStore keeps candle and indicator blobs as JSON strings. A TTL keeps
// abandoned feeds from accumulating; live feeds are rewritten every refresh.
type SnapshotStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSnapshotStore(rdb *redis.Client, prefix string, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, prefix: normalizePrefix(prefix), ttl: ttl}
}

func (s *SnapshotStore) key(storageKey string) string {
	return s.prefix + ":blob:" + storageKey
}

func (s *SnapshotStore) SaveCandles(ctx context.Context, storageKey string, candles []market.Candle) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("marshal candle blob: %w", err)
	}
	return s.rdb.Set(ctx, s.key(storageKey), raw, s.ttl).Err()
}

func (s *SnapshotStore) LoadCandles(ctx context.Context, storageKey string) ([]market.Candle, error) {
	raw, err := s.rdb.Get(ctx, s.key(storageKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("candle blob %q: %w", storageKey, feed.ErrSnapshotMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("candle blob %q: %w", storageKey, err)
	}
	return feed.DecodeCandles(raw)
}

func (s *SnapshotStore) SaveSeries(ctx context.Context, storageKey string, snap indicator.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal indicator blob: %w", err)
	}
	return s.rdb.Set(ctx, s.key(storageKey), raw, s.ttl).Err()
}

func (s *SnapshotStore) LoadSeries(ctx context.Context, storageKey string) (indicator.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(storageKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return indicator.Snapshot{}, fmt.Errorf("indicator blob %q: %w", storageKey, feed.ErrSnapshotMissing)
	}
	if err != nil {
		return indicator.Snapshot{}, fmt.Errorf("indicator blob %q: %w", storageKey, err)
	}
	return feed.DecodeSeries(raw)
}
