package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tidemark/internal/cursor"
	"tidemark/internal/feed"
	"tidemark/internal/logger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

// Dispatcher walks all bots on a fixed tick and enqueues an execution job for
// each bot whose closed-candle boundary has moved past its cursor and whose
// required feeds are all fresh. A stale feed is not an error: the bot is
// skipped this tick, the refresh is requested, and the next tick retries.
type Dispatcher struct {
	bots      []strategy.Bot
	manifests strategy.ManifestProvider
	states    feed.StateStore
	cursors   cursor.Store
	refresh   feed.RefreshQueue
	jobs      JobQueue
	epsilonMs int64

	nowFn func() time.Time

	mu         sync.Mutex
	registered map[string]bool // botID+feedKey consumer registrations
}

func New(bots []strategy.Bot, manifests strategy.ManifestProvider, states feed.StateStore, cursors cursor.Store, refresh feed.RefreshQueue, jobs JobQueue, epsilonMs int64) *Dispatcher {
	return &Dispatcher{
		bots:       bots,
		manifests:  manifests,
		states:     states,
		cursors:    cursors,
		refresh:    refresh,
		jobs:       jobs,
		epsilonMs:  epsilonMs,
		nowFn:      time.Now,
		registered: make(map[string]bool),
	}
}

// Tick evaluates every bot once. One bot's failure must not starve the rest,
// so errors are logged and the walk continues.
func (d *Dispatcher) Tick(ctx context.Context) {
	for _, bot := range d.bots {
		if err := d.dispatchBot(ctx, bot); err != nil {
			logger.Warnf("dispatch: bot=%s %v", bot.ID, err)
		}
	}
}

func (d *Dispatcher) dispatchBot(ctx context.Context, bot strategy.Bot) error {
	manifest, err := d.manifests.RequiredFeeds(bot)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	frameMs, ok := market.FrameMillis(bot.Timeframe)
	if !ok {
		return fmt.Errorf("invalid timeframe %q", bot.Timeframe)
	}
	now := d.nowFn().UnixMilli()
	boundary := market.RequiredClosedTime(now, d.epsilonMs, frameMs)

	cur, found, err := d.cursors.Get(ctx, bot.ID, bot.Timeframe)
	if err != nil {
		return fmt.Errorf("cursor: %w", err)
	}
	if found && boundary <= cur.LastProcessedCandleCloseMs {
		return nil // NOT_DUE
	}

	fresh, err := d.checkFeeds(ctx, bot, manifest, now)
	if err != nil {
		return err
	}
	if !fresh {
		logger.Debugf("dispatch: bot=%s boundary=%d waiting for feeds", bot.ID, boundary)
		return nil
	}

	job := Job{
		BotID:            bot.ID,
		Symbol:           bot.Symbol,
		Timeframe:        bot.Timeframe,
		ClosedCandleTime: boundary,
		DispatchedAtMs:   now,
	}
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	logger.Infof("dispatch: bot=%s candle=%d dispatched", bot.ID, boundary)
	return nil
}

// checkFeeds verifies every manifest feed against its own timeframe's
// boundary, requesting a refresh for each stale one.
func (d *Dispatcher) checkFeeds(ctx context.Context, bot strategy.Bot, manifest strategy.FeedManifest, now int64) (bool, error) {
	fresh := true
	for _, req := range manifest.Candles {
		key := feed.MarketKey{ExchangeID: bot.ExchangeID, Symbol: bot.Symbol, Timeframe: req.Timeframe}
		st, err := d.states.EnsureMarket(ctx, key, req.LookbackBars)
		if err != nil {
			return false, fmt.Errorf("ensure market %s: %w", key, err)
		}
		d.registerConsumer(ctx, bot.ID, key.String(), func() error {
			return d.states.AddMarketConsumer(ctx, key)
		})
		required, err := requiredFor(req.Timeframe, now, d.epsilonMs)
		if err != nil {
			return false, err
		}
		if !feed.MarketFresh(st, required) {
			fresh = false
			if err := d.refresh.EnqueueMarket(ctx, feed.MarketRefreshRequest{
				ExchangeID:   key.ExchangeID,
				Symbol:       key.Symbol,
				Timeframe:    key.Timeframe,
				LookbackBars: req.LookbackBars,
				RequiredAt:   required,
				Reason:       "dispatch-stale",
			}); err != nil {
				return false, fmt.Errorf("enqueue market refresh %s: %w", key, err)
			}
		}
	}

	for _, req := range manifest.Indicators {
		hash, err := feed.ParamsHash(req.IndicatorID, req.Source, req.Params)
		if err != nil {
			return false, fmt.Errorf("params hash %s: %w", req.IndicatorID, err)
		}
		key := feed.IndicatorKey{
			ExchangeID:  bot.ExchangeID,
			Symbol:      bot.Symbol,
			Timeframe:   req.Timeframe,
			IndicatorID: req.IndicatorID,
			ParamsHash:  hash,
		}
		st, err := d.states.EnsureIndicator(ctx, &feed.IndicatorFeedState{
			ExchangeID:      key.ExchangeID,
			Symbol:          key.Symbol,
			Timeframe:       key.Timeframe,
			IndicatorID:     key.IndicatorID,
			Source:          req.Source,
			Params:          req.Params,
			ParamsHash:      hash,
			MaxLookbackBars: req.LookbackBars,
			Status:          feed.StatusPending,
		})
		if err != nil {
			return false, fmt.Errorf("ensure indicator %s: %w", key, err)
		}
		d.registerConsumer(ctx, bot.ID, key.String(), func() error {
			return d.states.AddIndicatorConsumer(ctx, key)
		})
		required, err := requiredFor(req.Timeframe, now, d.epsilonMs)
		if err != nil {
			return false, err
		}
		if !feed.IndicatorFresh(st, required) {
			fresh = false
			if err := d.refresh.EnqueueIndicator(ctx, feed.IndicatorRefreshRequest{
				Key:        key,
				RequiredAt: required,
				Reason:     "dispatch-stale",
			}); err != nil {
				return false, fmt.Errorf("enqueue indicator refresh %s: %w", key, err)
			}
		}
	}
	return fresh, nil
}

func (d *Dispatcher) registerConsumer(ctx context.Context, botID, feedKey string, add func() error) {
	d.mu.Lock()
	seen := d.registered[botID+"|"+feedKey]
	if !seen {
		d.registered[botID+"|"+feedKey] = true
	}
	d.mu.Unlock()
	if seen {
		return
	}
	if err := add(); err != nil {
		logger.Warnf("dispatch: register consumer bot=%s feed=%s failed: %v", botID, feedKey, err)
	}
}

func requiredFor(timeframe string, nowMs, epsilonMs int64) (int64, error) {
	frameMs, ok := market.FrameMillis(timeframe)
	if !ok {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
	return market.RequiredClosedTime(nowMs, epsilonMs, frameMs), nil
}
