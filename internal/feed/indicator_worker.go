package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tidemark/internal/indicator"
	"tidemark/internal/logger"
)

// ErrParamsHashMismatch marks cache key corruption: the hash recomputed from
// the stored indicator config no longer matches the state's key hash.
// Computing anyway could silently use stale parameters, so this is a hard
// failure.
var ErrParamsHashMismatch = errors.New("indicator params hash mismatch")

// IndicatorWorker consumes indicator refresh requests and recomputes derived
// feeds from the upstream market snapshot.
type IndicatorWorker struct {
	states StateStore
	snaps  SnapshotStore
	queue  RefreshQueue
	engine *indicator.Engine

	nowFn func() time.Time
}

func NewIndicatorWorker(states StateStore, snaps SnapshotStore, queue RefreshQueue, engine *indicator.Engine) *IndicatorWorker {
	return &IndicatorWorker{
		states: states,
		snaps:  snaps,
		queue:  queue,
		engine: engine,
		nowFn:  time.Now,
	}
}

func (w *IndicatorWorker) HandleBatch(ctx context.Context, reqs []IndicatorRefreshRequest) error {
	var errs []error
	for _, req := range reqs {
		if err := w.handleOne(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("indicator refresh %s: %w", req.Key, err))
		}
	}
	return errors.Join(errs...)
}

func (w *IndicatorWorker) handleOne(ctx context.Context, req IndicatorRefreshRequest) error {
	st, err := w.states.GetIndicator(ctx, req.Key)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		return fmt.Errorf("state %s not found", req.Key)
	}
	now := w.nowFn().UnixMilli()

	computed, err := ParamsHash(st.IndicatorID, st.Source, st.Params)
	if err != nil {
		w.persistError(ctx, st, now, fmt.Sprintf("recompute params hash: %v", err))
		return err
	}
	if computed != st.ParamsHash {
		msg := fmt.Sprintf("stored=%s recomputed=%s", st.ParamsHash, computed)
		w.persistError(ctx, st, now, msg)
		return fmt.Errorf("%w: %s", ErrParamsHashMismatch, msg)
	}

	mk, err := w.states.GetMarket(ctx, req.Key.Market())
	if err != nil {
		return fmt.Errorf("load market state: %w", err)
	}
	if !MarketFresh(mk, req.RequiredAt) {
		// Upstream not ready yet; request it and wait for the fan-out
		// that follows its completion.
		logger.Debugf("feed: %s upstream %s not fresh, requesting market refresh", req.Key, req.Key.Market())
		mkReq := MarketRefreshRequest{
			ExchangeID:   req.Key.ExchangeID,
			Symbol:       req.Key.Symbol,
			Timeframe:    req.Key.Timeframe,
			LookbackBars: st.MaxLookbackBars,
			RequiredAt:   req.RequiredAt,
			Reason:       "indicator-upstream",
		}
		if err := w.queue.EnqueueMarket(ctx, mkReq); err != nil {
			return fmt.Errorf("enqueue upstream refresh: %w", err)
		}
		return nil
	}

	candles, err := w.snaps.LoadCandles(ctx, mk.StorageKey)
	if err != nil {
		w.persistError(ctx, st, now, fmt.Sprintf("load candle snapshot: %v", err))
		return fmt.Errorf("load candle snapshot: %w", err)
	}
	snap, err := w.engine.Compute(st.IndicatorID, candles, st.Params)
	if err != nil {
		w.persistError(ctx, st, now, fmt.Sprintf("compute: %v", err))
		return fmt.Errorf("compute: %w", err)
	}

	storageKey := fmt.Sprintf("indicator|%s|%d", req.Key, mk.LastClosedCandleTime)
	if err := w.snaps.SaveSeries(ctx, storageKey, snap); err != nil {
		w.persistError(ctx, st, now, fmt.Sprintf("save snapshot: %v", err))
		return fmt.Errorf("save snapshot: %w", err)
	}

	st.Status = StatusReady
	st.LastClosedCandleTime = mk.LastClosedCandleTime
	st.LastComputedCandleTime = mk.LastClosedCandleTime
	st.LastRefreshedAt = now
	st.NextDueAt = mk.NextDueAt
	st.StorageKey = storageKey
	st.CandleCount = len(candles)
	st.ErrorMessage = ""
	if err := w.states.PutIndicator(ctx, st); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	logger.Infof("feed: %s ready computed_to=%d reason=%s", req.Key, st.LastComputedCandleTime, req.Reason)
	return nil
}

// persistError keeps the prior good snapshot fields for degraded service.
// Detached context for the same reason as the market worker: the error state
// must land even when the request ctx was canceled by shutdown.
func (w *IndicatorWorker) persistError(ctx context.Context, st *IndicatorFeedState, now int64, msg string) {
	st.Status = StatusError
	st.ErrorMessage = msg
	st.LastRefreshedAt = now
	if err := w.states.PutIndicator(context.WithoutCancel(ctx), st); err != nil {
		logger.Warnf("feed: persist error state for %s failed: %v", st.Key(), err)
	}
}
