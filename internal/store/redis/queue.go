package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tidemark/internal/dispatch"
	"tidemark/internal/feed"
)

const dequeueBlock = 5 * time.Second

// Queues implements the refresh and execution job queues on Redis lists.
// LPUSH producers, BRPOP consumers; JSON payloads so any process in the
// deployment can produce or consume.
type Queues struct {
	rdb          *redis.Client
	keyMarket    string
	keyIndicator string
	keyJobs      string
}

func NewQueues(rdb *redis.Client, prefix string) *Queues {
	prefix = normalizePrefix(prefix)
	return &Queues{
		rdb:          rdb,
		keyMarket:    prefix + ":queue:market-refresh",
		keyIndicator: prefix + ":queue:indicator-refresh",
		keyJobs:      prefix + ":queue:execution-jobs",
	}
}

func (q *Queues) EnqueueMarket(ctx context.Context, req feed.MarketRefreshRequest) error {
	return q.push(ctx, q.keyMarket, req)
}

func (q *Queues) DequeueMarket(ctx context.Context) (feed.MarketRefreshRequest, bool, error) {
	var req feed.MarketRefreshRequest
	ok, err := q.pop(ctx, q.keyMarket, &req)
	return req, ok, err
}

func (q *Queues) EnqueueIndicator(ctx context.Context, req feed.IndicatorRefreshRequest) error {
	return q.push(ctx, q.keyIndicator, req)
}

func (q *Queues) DequeueIndicator(ctx context.Context) (feed.IndicatorRefreshRequest, bool, error) {
	var req feed.IndicatorRefreshRequest
	ok, err := q.pop(ctx, q.keyIndicator, &req)
	return req, ok, err
}

func (q *Queues) Enqueue(ctx context.Context, job dispatch.Job) error {
	return q.push(ctx, q.keyJobs, job)
}

func (q *Queues) Dequeue(ctx context.Context) (dispatch.Job, bool, error) {
	var job dispatch.Job
	ok, err := q.pop(ctx, q.keyJobs, &job)
	return job, ok, err
}

func (q *Queues) push(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	return q.rdb.LPush(ctx, key, raw).Err()
}

// pop blocks up to dequeueBlock per round so a canceled context is noticed
// promptly. ok=false without error means shutdown.
func (q *Queues) pop(ctx context.Context, key string, out any) (bool, error) {
	for {
		vals, err := q.rdb.BRPop(ctx, dequeueBlock, key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return false, nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, fmt.Errorf("brpop %s: %w", key, err)
		}
		if len(vals) != 2 {
			return false, fmt.Errorf("brpop %s: unexpected reply length %d", key, len(vals))
		}
		if err := json.Unmarshal([]byte(vals[1]), out); err != nil {
			return false, fmt.Errorf("decode queue payload from %s: %w", key, err)
		}
		return true, nil
	}
}
