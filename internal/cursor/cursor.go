package cursor

import (
	"context"
	"sync"
)

// Cursor is the monotonic watermark of the last fully-processed closed-candle
// boundary for one (bot, timeframe).
type Cursor struct {
	BotID                     string `json:"bot_id"`
	Timeframe                 string `json:"timeframe"`
	LastProcessedCandleCloseMs int64 `json:"last_processed_candle_close_ms"`
	UpdatedAtMs               int64 `json:"updated_at_ms"`
}

// Store persists execution cursors. Advance is the coordination primitive for
// at-most-once execution per closed candle: it must be conditional at the
// storage layer (compare-and-swap or equivalent).
type Store interface {
	Get(ctx context.Context, botID, timeframe string) (Cursor, bool, error)
	// Advance sets the cursor to closeMs only if closeMs is strictly
	// greater than the stored value. Returns false when another writer
	// already advanced to closeMs or beyond; that loss is benign.
	Advance(ctx context.Context, botID, timeframe string, closeMs, nowMs int64) (bool, error)
	List(ctx context.Context) ([]Cursor, error)
}

type key struct {
	botID     string
	timeframe string
}

// MemoryStore is a mutex-guarded Store for tests and dev mode.
type MemoryStore struct {
	mu      sync.Mutex
	cursors map[key]Cursor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cursors: make(map[key]Cursor)}
}

func (s *MemoryStore) Get(ctx context.Context, botID, timeframe string) (Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[key{botID, timeframe}]
	return c, ok, nil
}

func (s *MemoryStore) Advance(ctx context.Context, botID, timeframe string, closeMs, nowMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{botID, timeframe}
	cur, ok := s.cursors[k]
	if ok && closeMs <= cur.LastProcessedCandleCloseMs {
		return false, nil
	}
	s.cursors[k] = Cursor{
		BotID:                      botID,
		Timeframe:                  timeframe,
		LastProcessedCandleCloseMs: closeMs,
		UpdatedAtMs:                nowMs,
	}
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, c)
	}
	return out, nil
}
