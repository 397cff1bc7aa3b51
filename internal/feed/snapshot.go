package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"tidemark/internal/indicator"
	"tidemark/internal/market"
)

// SnapshotStore stores candle and indicator data blobs addressable by an
// opaque storage key. Blobs are JSON on every backend so reads always pass
// through the strict decode boundary.
type SnapshotStore interface {
	SaveCandles(ctx context.Context, storageKey string, candles []market.Candle) error
	LoadCandles(ctx context.Context, storageKey string) ([]market.Candle, error)
	SaveSeries(ctx context.Context, storageKey string, snap indicator.Snapshot) error
	LoadSeries(ctx context.Context, storageKey string) (indicator.Snapshot, error)
}

// MemorySnapshotStore keeps marshaled blobs in memory.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{blobs: make(map[string][]byte)}
}

func (s *MemorySnapshotStore) SaveCandles(ctx context.Context, storageKey string, candles []market.Candle) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("marshal candle blob: %w", err)
	}
	s.put(storageKey, raw)
	return nil
}

func (s *MemorySnapshotStore) LoadCandles(ctx context.Context, storageKey string) ([]market.Candle, error) {
	raw, ok := s.get(storageKey)
	if !ok {
		return nil, fmt.Errorf("candle blob %q: %w", storageKey, ErrSnapshotMissing)
	}
	return DecodeCandles(raw)
}

func (s *MemorySnapshotStore) SaveSeries(ctx context.Context, storageKey string, snap indicator.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal indicator blob: %w", err)
	}
	s.put(storageKey, raw)
	return nil
}

func (s *MemorySnapshotStore) LoadSeries(ctx context.Context, storageKey string) (indicator.Snapshot, error) {
	raw, ok := s.get(storageKey)
	if !ok {
		return indicator.Snapshot{}, fmt.Errorf("indicator blob %q: %w", storageKey, ErrSnapshotMissing)
	}
	return DecodeSeries(raw)
}

func (s *MemorySnapshotStore) put(key string, raw []byte) {
	s.mu.Lock()
	s.blobs[key] = raw
	s.mu.Unlock()
}

func (s *MemorySnapshotStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.blobs[key]
	return raw, ok
}
