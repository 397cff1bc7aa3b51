package feed

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RefreshLeaseMs bounds how long a refreshing claim is honored. A claim whose
// LastRefreshedAt is older than the lease belongs to a worker that died
// mid-fetch and may be taken over; without this the feed would stay
// refreshing forever and every retry would be skipped as a benign no-op.
const RefreshLeaseMs = int64(2 * time.Minute / time.Millisecond)

// StateStore holds feed freshness state. Transitions that gate concurrent
// workers (market stale→refreshing) must be atomic at the storage layer.
type StateStore interface {
	GetMarket(ctx context.Context, key MarketKey) (*MarketFeedState, error)
	PutMarket(ctx context.Context, st *MarketFeedState) error
	// EnsureMarket creates the state as stale on first sight and raises
	// MaxLookbackBars when a consumer needs deeper history.
	EnsureMarket(ctx context.Context, key MarketKey, lookbackBars int) (*MarketFeedState, error)
	// AddMarketConsumer bumps RequiredByCount once per registered consumer.
	AddMarketConsumer(ctx context.Context, key MarketKey) error
	// MarkMarketRefreshing atomically transitions the state to refreshing.
	// Returns ok=false when another worker holds a live claim (younger than
	// RefreshLeaseMs), which callers treat as a benign no-op. An expired
	// claim is taken over.
	MarkMarketRefreshing(ctx context.Context, key MarketKey, nowMs int64) (*MarketFeedState, bool, error)

	GetIndicator(ctx context.Context, key IndicatorKey) (*IndicatorFeedState, error)
	PutIndicator(ctx context.Context, st *IndicatorFeedState) error
	EnsureIndicator(ctx context.Context, st *IndicatorFeedState) (*IndicatorFeedState, error)
	AddIndicatorConsumer(ctx context.Context, key IndicatorKey) error
	// ListIndicatorsFor returns every indicator feed that depends on the
	// given market feed. Market refresh completion fans out over this set.
	ListIndicatorsFor(ctx context.Context, key MarketKey) ([]IndicatorFeedState, error)

	ListMarkets(ctx context.Context) ([]MarketFeedState, error)
	ListIndicators(ctx context.Context) ([]IndicatorFeedState, error)
}

// MemoryStateStore is a mutex-guarded StateStore for tests and dev mode.
type MemoryStateStore struct {
	mu         sync.RWMutex
	markets    map[MarketKey]MarketFeedState
	indicators map[IndicatorKey]IndicatorFeedState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		markets:    make(map[MarketKey]MarketFeedState),
		indicators: make(map[IndicatorKey]IndicatorFeedState),
	}
}

func (s *MemoryStateStore) GetMarket(ctx context.Context, key MarketKey) (*MarketFeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.markets[key]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStateStore) PutMarket(ctx context.Context, st *MarketFeedState) error {
	if st == nil {
		return nil
	}
	s.mu.Lock()
	s.markets[st.Key()] = *st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) EnsureMarket(ctx context.Context, key MarketKey, lookbackBars int) (*MarketFeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.markets[key]
	if !ok {
		st = MarketFeedState{
			ExchangeID:      key.ExchangeID,
			Symbol:          key.Symbol,
			Timeframe:       key.Timeframe,
			MaxLookbackBars: lookbackBars,
			Status:          StatusStale,
		}
	}
	if lookbackBars > st.MaxLookbackBars {
		st.MaxLookbackBars = lookbackBars
	}
	s.markets[key] = st
	return &st, nil
}

func (s *MemoryStateStore) AddMarketConsumer(ctx context.Context, key MarketKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.markets[key]
	if !ok {
		return nil
	}
	st.RequiredByCount++
	s.markets[key] = st
	return nil
}

func (s *MemoryStateStore) MarkMarketRefreshing(ctx context.Context, key MarketKey, nowMs int64) (*MarketFeedState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.markets[key]
	if !ok {
		st = MarketFeedState{
			ExchangeID: key.ExchangeID,
			Symbol:     key.Symbol,
			Timeframe:  key.Timeframe,
			Status:     StatusStale,
		}
	}
	if st.Status == StatusRefreshing && nowMs-st.LastRefreshedAt < RefreshLeaseMs {
		return &st, false, nil
	}
	st.Status = StatusRefreshing
	st.LastRefreshedAt = nowMs
	s.markets[key] = st
	return &st, true, nil
}

func (s *MemoryStateStore) GetIndicator(ctx context.Context, key IndicatorKey) (*IndicatorFeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.indicators[key]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MemoryStateStore) PutIndicator(ctx context.Context, st *IndicatorFeedState) error {
	if st == nil {
		return nil
	}
	s.mu.Lock()
	s.indicators[st.Key()] = *st
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) EnsureIndicator(ctx context.Context, st *IndicatorFeedState) (*IndicatorFeedState, error) {
	if st == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.indicators[st.Key()]
	if !ok {
		cur = *st
		if cur.Status == "" {
			cur.Status = StatusPending
		}
	}
	if st.MaxLookbackBars > cur.MaxLookbackBars {
		cur.MaxLookbackBars = st.MaxLookbackBars
	}
	s.indicators[st.Key()] = cur
	return &cur, nil
}

func (s *MemoryStateStore) AddIndicatorConsumer(ctx context.Context, key IndicatorKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.indicators[key]
	if !ok {
		return nil
	}
	st.RequiredByCount++
	s.indicators[key] = st
	return nil
}

func (s *MemoryStateStore) ListIndicatorsFor(ctx context.Context, key MarketKey) ([]IndicatorFeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndicatorFeedState, 0)
	for k, st := range s.indicators {
		if k.ExchangeID == key.ExchangeID && k.Symbol == key.Symbol && k.Timeframe == key.Timeframe {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (s *MemoryStateStore) ListMarkets(ctx context.Context) ([]MarketFeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MarketFeedState, 0, len(s.markets))
	for _, st := range s.markets {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (s *MemoryStateStore) ListIndicators(ctx context.Context) ([]IndicatorFeedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndicatorFeedState, 0, len(s.indicators))
	for _, st := range s.indicators {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}
