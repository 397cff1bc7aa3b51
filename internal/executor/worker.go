package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tidemark/internal/cursor"
	"tidemark/internal/dispatch"
	"tidemark/internal/feed"
	"tidemark/internal/indicator"
	"tidemark/internal/ledger"
	"tidemark/internal/logger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

// ErrFeedNotFresh marks a required feed that went stale between dispatch and
// execution. Treated as a hard failure so queue retry applies.
var ErrFeedNotFresh = errors.New("required feed not fresh at execution time")

// Worker consumes execution jobs. Delivery is at-least-once; the cursor
// re-check and the conditional advance make duplicate deliveries harmless.
type Worker struct {
	bots      map[string]strategy.Bot
	manifests strategy.ManifestProvider
	states    feed.StateStore
	snaps     feed.SnapshotStore
	cursors   cursor.Store
	ledger    ledger.Store
	runs      RunRecorder
	processor strategy.Processor
	epsilonMs int64

	nowFn func() time.Time
}

func NewWorker(bots []strategy.Bot, manifests strategy.ManifestProvider, states feed.StateStore, snaps feed.SnapshotStore, cursors cursor.Store, ledgerStore ledger.Store, runs RunRecorder, processor strategy.Processor, epsilonMs int64) *Worker {
	byID := make(map[string]strategy.Bot, len(bots))
	for _, b := range bots {
		byID[b.ID] = b
	}
	return &Worker{
		bots:      byID,
		manifests: manifests,
		states:    states,
		snaps:     snaps,
		cursors:   cursors,
		ledger:    ledgerStore,
		runs:      runs,
		processor: processor,
		epsilonMs: epsilonMs,
		nowFn:     time.Now,
	}
}

// HandleBatch processes jobs one by one. Failed jobs are reported upward so
// the queue's retry/backoff policy applies; the cursor stays unadvanced.
func (w *Worker) HandleBatch(ctx context.Context, jobs []dispatch.Job) error {
	var errs []error
	for _, job := range jobs {
		if err := w.handleOne(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("bot=%s candle=%d: %w", job.BotID, job.ClosedCandleTime, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) handleOne(ctx context.Context, job dispatch.Job) error {
	startedAt := w.nowFn().UnixMilli()

	bot, ok := w.bots[job.BotID]
	if !ok {
		err := fmt.Errorf("unknown bot %q", job.BotID)
		w.recordRun(ctx, job, RunFailed, err.Error(), startedAt)
		return err
	}

	// Re-check the cursor before any exchange-affecting work: a duplicate
	// delivery of an already-processed candle is a no-op success.
	cur, found, err := w.cursors.Get(ctx, job.BotID, job.Timeframe)
	if err != nil {
		w.recordRun(ctx, job, RunFailed, fmt.Sprintf("cursor read: %v", err), startedAt)
		return fmt.Errorf("cursor read: %w", err)
	}
	if found && cur.LastProcessedCandleCloseMs >= job.ClosedCandleTime {
		logger.Debugf("executor: bot=%s candle=%d already processed, no-op", job.BotID, job.ClosedCandleTime)
		return nil
	}

	manifest, err := w.manifests.RequiredFeeds(bot)
	if err != nil {
		w.recordRun(ctx, job, RunFailed, fmt.Sprintf("manifest: %v", err), startedAt)
		return fmt.Errorf("manifest: %w", err)
	}

	event, err := w.loadEvent(ctx, bot, manifest, job)
	if err != nil {
		w.recordRun(ctx, job, RunFailed, err.Error(), startedAt)
		return err
	}

	result, err := w.processor.Process(ctx, *event)
	if err != nil {
		w.recordRun(ctx, job, RunFailed, fmt.Sprintf("process: %v", err), startedAt)
		return fmt.Errorf("process: %w", err)
	}

	now := w.nowFn().UnixMilli()
	outcome := DeriveOutcome(bot, event.Position, result, now)
	if err := w.persistOutcome(ctx, outcome); err != nil {
		w.recordRun(ctx, job, RunFailed, fmt.Sprintf("persist: %v", err), startedAt)
		return fmt.Errorf("persist: %w", err)
	}

	// The conditional advance is the linearization point for "this candle
	// got processed". Losing it to a concurrent delivery is benign.
	advanced, err := w.cursors.Advance(ctx, job.BotID, job.Timeframe, job.ClosedCandleTime, now)
	if err != nil {
		w.recordRun(ctx, job, RunFailed, fmt.Sprintf("cursor advance: %v", err), startedAt)
		return fmt.Errorf("cursor advance: %w", err)
	}
	if !advanced {
		logger.Debugf("executor: bot=%s candle=%d cursor advance lost, treating as processed", job.BotID, job.ClosedCandleTime)
		w.recordRun(ctx, job, RunNoop, "cursor advance lost to concurrent delivery", startedAt)
		return nil
	}
	w.recordRun(ctx, job, RunOK, string(result.Status), startedAt)
	logger.Infof("executor: bot=%s candle=%d status=%s", job.BotID, job.ClosedCandleTime, result.Status)
	return nil
}

// loadEvent re-validates feed freshness with the dispatcher's formula and
// gathers every required candle series and indicator snapshot with unordered
// concurrent fan-out; one failure fails the job.
func (w *Worker) loadEvent(ctx context.Context, bot strategy.Bot, manifest strategy.FeedManifest, job dispatch.Job) (*strategy.Event, error) {
	now := w.nowFn().UnixMilli()

	event := &strategy.Event{
		Bot:              bot,
		ClosedCandleTime: job.ClosedCandleTime,
		Candles:          make(map[string][]market.Candle, len(manifest.Candles)),
		Indicators:       make(map[string]indicator.Snapshot, len(manifest.Indicators)),
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, req := range manifest.Candles {
		req := req
		g.Go(func() error {
			key := feed.MarketKey{ExchangeID: bot.ExchangeID, Symbol: bot.Symbol, Timeframe: req.Timeframe}
			st, err := w.states.GetMarket(gctx, key)
			if err != nil {
				return fmt.Errorf("market state %s: %w", key, err)
			}
			required, err := w.requiredFor(req.Timeframe, now, job, bot)
			if err != nil {
				return err
			}
			if !feed.MarketFresh(st, required) {
				return fmt.Errorf("%w: market %s", ErrFeedNotFresh, key)
			}
			candles, err := w.snaps.LoadCandles(gctx, st.StorageKey)
			if err != nil {
				return fmt.Errorf("candles %s: %w", key, err)
			}
			mu.Lock()
			event.Candles[req.Role] = candles
			mu.Unlock()
			return nil
		})
	}

	for _, req := range manifest.Indicators {
		req := req
		g.Go(func() error {
			hash, err := feed.ParamsHash(req.IndicatorID, req.Source, req.Params)
			if err != nil {
				return fmt.Errorf("params hash %s: %w", req.IndicatorID, err)
			}
			key := feed.IndicatorKey{
				ExchangeID:  bot.ExchangeID,
				Symbol:      bot.Symbol,
				Timeframe:   req.Timeframe,
				IndicatorID: req.IndicatorID,
				ParamsHash:  hash,
			}
			st, err := w.states.GetIndicator(gctx, key)
			if err != nil {
				return fmt.Errorf("indicator state %s: %w", key, err)
			}
			required, err := w.requiredFor(req.Timeframe, now, job, bot)
			if err != nil {
				return err
			}
			if !feed.IndicatorFresh(st, required) {
				return fmt.Errorf("%w: indicator %s", ErrFeedNotFresh, key)
			}
			snap, err := w.snaps.LoadSeries(gctx, st.StorageKey)
			if err != nil {
				return fmt.Errorf("indicator snapshot %s: %w", key, err)
			}
			mu.Lock()
			event.Indicators[req.Role] = snap
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	prior, err := w.ledger.ActivePosition(ctx, bot.ID, bot.Symbol)
	if err != nil {
		return nil, fmt.Errorf("active position: %w", err)
	}
	event.Position = prior
	return event, nil
}

// requiredFor computes the freshness requirement for one timeframe. The
// execution timeframe must additionally cover the job's own boundary, which
// may be older than "now" after queue delay.
func (w *Worker) requiredFor(timeframe string, nowMs int64, job dispatch.Job, bot strategy.Bot) (int64, error) {
	frameMs, ok := market.FrameMillis(timeframe)
	if !ok {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	required := market.RequiredClosedTime(nowMs, w.epsilonMs, frameMs)
	if timeframe == bot.Timeframe && job.ClosedCandleTime > required {
		required = job.ClosedCandleTime
	}
	return required, nil
}

func (w *Worker) persistOutcome(ctx context.Context, outcome Outcome) error {
	if outcome.Position != nil {
		if err := w.ledger.SavePosition(ctx, outcome.Position); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
	}
	if outcome.Order != nil {
		if err := w.ledger.SaveOrder(ctx, outcome.Order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
	}
	for i := range outcome.Fills {
		if err := w.ledger.SaveFill(ctx, &outcome.Fills[i]); err != nil {
			return fmt.Errorf("save fill: %w", err)
		}
	}
	if outcome.Event != nil {
		if err := w.ledger.AppendEvent(ctx, outcome.Event); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	return nil
}

func (w *Worker) recordRun(ctx context.Context, job dispatch.Job, status, message string, startedAt int64) {
	if w.runs == nil {
		return
	}
	rec := RunRecord{
		ID:               uuid.NewString(),
		BotID:            job.BotID,
		Symbol:           job.Symbol,
		Timeframe:        job.Timeframe,
		ClosedCandleTime: job.ClosedCandleTime,
		Status:           status,
		Message:          message,
		StartedAtMs:      startedAt,
		FinishedAtMs:     w.nowFn().UnixMilli(),
	}
	if err := w.runs.Record(ctx, rec); err != nil {
		logger.Warnf("executor: record run bot=%s status=%s failed: %v", job.BotID, status, err)
	}
}
