package ledger

import (
	"context"
	"sort"
	"sync"
)

// Store persists the position/order/fill/event ledger.
type Store interface {
	ActivePosition(ctx context.Context, botID, symbol string) (*PositionRecord, error)
	SavePosition(ctx context.Context, p *PositionRecord) error
	ListPositions(ctx context.Context, botID string) ([]PositionRecord, error)

	SaveOrder(ctx context.Context, o *OrderRecord) error
	SaveFill(ctx context.Context, f *FillRecord) error

	AppendEvent(ctx context.Context, e *ReconciliationEventRecord) error
	ListEvents(ctx context.Context, botID string, limit int) ([]ReconciliationEventRecord, error)
}

// MemoryStore is a mutex-guarded in-memory Store, used in tests and dev mode.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]PositionRecord // keyed by position id
	orders    map[string]OrderRecord
	fills     map[string]FillRecord
	events    []ReconciliationEventRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string]PositionRecord),
		orders:    make(map[string]OrderRecord),
		fills:     make(map[string]FillRecord),
	}
}

func (s *MemoryStore) ActivePosition(ctx context.Context, botID, symbol string) (*PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *PositionRecord
	for _, p := range s.positions {
		if p.BotID != botID || p.Symbol != symbol {
			continue
		}
		p := p
		if !p.Active() {
			continue
		}
		if best == nil || p.OpenedAtMs > best.OpenedAtMs {
			best = &p
		}
	}
	return best, nil
}

func (s *MemoryStore) SavePosition(ctx context.Context, p *PositionRecord) error {
	if p == nil || p.ID == "" {
		return nil
	}
	s.mu.Lock()
	s.positions[p.ID] = *p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListPositions(ctx context.Context, botID string) ([]PositionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PositionRecord, 0)
	for _, p := range s.positions {
		if botID == "" || p.BotID == botID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, o *OrderRecord) error {
	if o == nil || o.ID == "" {
		return nil
	}
	s.mu.Lock()
	s.orders[o.ID] = *o
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveFill(ctx context.Context, f *FillRecord) error {
	if f == nil || f.ID == "" {
		return nil
	}
	s.mu.Lock()
	s.fills[f.ID] = *f
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *ReconciliationEventRecord) error {
	if e == nil {
		return nil
	}
	s.mu.Lock()
	s.events = append(s.events, *e)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, botID string, limit int) ([]ReconciliationEventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ReconciliationEventRecord, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if botID != "" && e.BotID != botID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Counts returns ledger row counts, used by tests to assert idempotency.
func (s *MemoryStore) Counts() (positions, orders, fills, events int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions), len(s.orders), len(s.fills), len(s.events)
}
