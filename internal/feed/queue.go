package feed

import "context"

// RefreshQueue carries refresh requests to the feed workers. Delivery is
// at-least-once; workers must tolerate duplicates.
type RefreshQueue interface {
	EnqueueMarket(ctx context.Context, req MarketRefreshRequest) error
	// DequeueMarket blocks until a request arrives or ctx is done.
	// ok=false means the queue is shutting down.
	DequeueMarket(ctx context.Context) (MarketRefreshRequest, bool, error)

	EnqueueIndicator(ctx context.Context, req IndicatorRefreshRequest) error
	DequeueIndicator(ctx context.Context) (IndicatorRefreshRequest, bool, error)
}

// MemoryRefreshQueue is a channel-backed RefreshQueue for tests and dev mode.
type MemoryRefreshQueue struct {
	marketCh    chan MarketRefreshRequest
	indicatorCh chan IndicatorRefreshRequest
}

func NewMemoryRefreshQueue(buffer int) *MemoryRefreshQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryRefreshQueue{
		marketCh:    make(chan MarketRefreshRequest, buffer),
		indicatorCh: make(chan IndicatorRefreshRequest, buffer),
	}
}

func (q *MemoryRefreshQueue) EnqueueMarket(ctx context.Context, req MarketRefreshRequest) error {
	select {
	case q.marketCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryRefreshQueue) DequeueMarket(ctx context.Context) (MarketRefreshRequest, bool, error) {
	select {
	case req := <-q.marketCh:
		return req, true, nil
	case <-ctx.Done():
		return MarketRefreshRequest{}, false, nil
	}
}

func (q *MemoryRefreshQueue) EnqueueIndicator(ctx context.Context, req IndicatorRefreshRequest) error {
	select {
	case q.indicatorCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryRefreshQueue) DequeueIndicator(ctx context.Context) (IndicatorRefreshRequest, bool, error) {
	select {
	case req := <-q.indicatorCh:
		return req, true, nil
	case <-ctx.Done():
		return IndicatorRefreshRequest{}, false, nil
	}
}

// PendingMarket reports buffered market requests; used by tests.
func (q *MemoryRefreshQueue) PendingMarket() int { return len(q.marketCh) }

// PendingIndicator reports buffered indicator requests; used by tests.
func (q *MemoryRefreshQueue) PendingIndicator() int { return len(q.indicatorCh) }
