package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tidemark/internal/logger"
	"tidemark/internal/market"
)

// MarketWorker consumes market refresh requests: it marks the feed
// refreshing, fetches candles, persists the snapshot and state, and fans out
// a refresh for every indicator feed that depends on the market feed.
type MarketWorker struct {
	source market.KlineSource
	states StateStore
	snaps  SnapshotStore
	queue  RefreshQueue

	nowFn func() time.Time
}

func NewMarketWorker(source market.KlineSource, states StateStore, snaps SnapshotStore, queue RefreshQueue) *MarketWorker {
	return &MarketWorker{
		source: source,
		states: states,
		snaps:  snaps,
		queue:  queue,
		nowFn:  time.Now,
	}
}

// HandleBatch processes a batch of refresh requests. Individual failures are
// collected so the queue can retry the batch; benign CAS losses are not
// failures.
func (w *MarketWorker) HandleBatch(ctx context.Context, reqs []MarketRefreshRequest) error {
	var errs []error
	for _, req := range reqs {
		if err := w.handleOne(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("market refresh %s: %w", req.Key(), err))
		}
	}
	return errors.Join(errs...)
}

func (w *MarketWorker) handleOne(ctx context.Context, req MarketRefreshRequest) error {
	key := req.Key()
	now := w.nowFn().UnixMilli()

	st, ok, err := w.states.MarkMarketRefreshing(ctx, key, now)
	if err != nil {
		return fmt.Errorf("mark refreshing: %w", err)
	}
	if !ok {
		// Another worker holds the refresh; expected under concurrent
		// delivery, not a failure.
		logger.Debugf("feed: %s already refreshing, skip", key)
		return nil
	}

	lookback := st.MaxLookbackBars
	if req.LookbackBars > lookback {
		lookback = req.LookbackBars
	}
	if lookback <= 0 {
		lookback = 100
	}

	candles, err := w.source.FetchKlines(ctx, key.Symbol, key.Timeframe, lookback, 0)
	if err != nil {
		w.persistError(ctx, st, now, fmt.Sprintf("fetch klines: %v", err))
		return fmt.Errorf("fetch klines: %w", err)
	}
	candles = dropUnclosed(candles, now)
	if len(candles) == 0 {
		w.persistError(ctx, st, now, "no closed candles returned")
		return fmt.Errorf("no closed candles returned")
	}

	lastClosed := candles[len(candles)-1].CloseTime
	storageKey := fmt.Sprintf("candles|%s|%d", key, lastClosed)
	if err := w.snaps.SaveCandles(ctx, storageKey, candles); err != nil {
		w.persistError(ctx, st, now, fmt.Sprintf("save snapshot: %v", err))
		return fmt.Errorf("save snapshot: %w", err)
	}

	st.Status = StatusReady
	st.LastClosedCandleTime = lastClosed
	st.LastRefreshedAt = now
	st.StorageKey = storageKey
	st.CandleCount = len(candles)
	st.ErrorMessage = ""
	if st.MaxLookbackBars < lookback {
		st.MaxLookbackBars = lookback
	}
	if frameMs, ok := market.FrameMillis(key.Timeframe); ok {
		st.NextDueAt = lastClosed + frameMs + 1
	}
	if err := w.states.PutMarket(ctx, st); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	if len(candles) < st.MaxLookbackBars {
		// New listings have less history than consumers asked for; the feed
		// still serves what exists.
		logger.Warnf("feed: %s short history: %d candles for lookback %d", key, len(candles), st.MaxLookbackBars)
	}
	logger.Infof("feed: %s ready last_closed=%d candles=%d reason=%s", key, lastClosed, len(candles), req.Reason)

	return w.fanOut(ctx, key, lastClosed)
}

// fanOut enqueues a refresh for every indicator feed keyed to the market
// feed. Skipping this would silently strand indicators at stale.
func (w *MarketWorker) fanOut(ctx context.Context, key MarketKey, lastClosed int64) error {
	deps, err := w.states.ListIndicatorsFor(ctx, key)
	if err != nil {
		return fmt.Errorf("list dependent indicators: %w", err)
	}
	var errs []error
	for _, dep := range deps {
		req := IndicatorRefreshRequest{
			Key:        dep.Key(),
			RequiredAt: lastClosed,
			Reason:     "market-refresh",
		}
		if err := w.queue.EnqueueIndicator(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("enqueue indicator %s: %w", dep.Key(), err))
		}
	}
	if len(deps) > 0 {
		logger.Debugf("feed: %s fan-out to %d indicator feeds", key, len(deps))
	}
	return errors.Join(errs...)
}

// persistError transitions the state to error while preserving the prior good
// snapshot so readers keep degraded service. The write uses a detached
// context: the request ctx is often already canceled when the fetch failed on
// shutdown, and losing this write would leave the refreshing claim dangling.
func (w *MarketWorker) persistError(ctx context.Context, st *MarketFeedState, now int64, msg string) {
	st.Status = StatusError
	st.ErrorMessage = msg
	st.LastRefreshedAt = now
	if err := w.states.PutMarket(context.WithoutCancel(ctx), st); err != nil {
		logger.Warnf("feed: persist error state for %s failed: %v", st.Key(), err)
	}
}

func dropUnclosed(candles []market.Candle, nowMs int64) []market.Candle {
	out := candles
	for len(out) > 0 && out[len(out)-1].CloseTime > nowMs {
		out = out[:len(out)-1]
	}
	return out
}
