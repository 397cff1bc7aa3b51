package dispatch

import "context"

// Job is one execution unit: run a bot against one closed candle. Delivery
// is at-least-once; the execution worker's cursor re-check makes replays
// harmless.
type Job struct {
	BotID            string `json:"bot_id"`
	Symbol           string `json:"symbol"`
	Timeframe        string `json:"timeframe"`
	ClosedCandleTime int64  `json:"closed_candle_time"`
	DispatchedAtMs   int64  `json:"dispatched_at_ms"`
}

// JobQueue carries execution jobs from the dispatcher to execution workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job arrives or ctx is done; ok=false means
	// shutdown.
	Dequeue(ctx context.Context) (Job, bool, error)
}

// MemoryJobQueue is a channel-backed JobQueue for tests and dev mode.
type MemoryJobQueue struct {
	ch chan Job
}

func NewMemoryJobQueue(buffer int) *MemoryJobQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryJobQueue{ch: make(chan Job, buffer)}
}

func (q *MemoryJobQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryJobQueue) Dequeue(ctx context.Context) (Job, bool, error) {
	select {
	case job := <-q.ch:
		return job, true, nil
	case <-ctx.Done():
		return Job{}, false, nil
	}
}

// Pending reports buffered jobs; used by tests.
func (q *MemoryJobQueue) Pending() int { return len(q.ch) }
