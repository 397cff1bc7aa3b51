package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tidemark/internal/ledger"
	"tidemark/internal/logger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

// Runner drives the reconciliation engine across all bots on its own
// cadence, independent of the execution path.
type Runner struct {
	bots   []strategy.Bot
	reader market.PositionReader
	store  ledger.Store

	nowFn func() time.Time
}

func NewRunner(bots []strategy.Bot, reader market.PositionReader, store ledger.Store) *Runner {
	return &Runner{
		bots:   bots,
		reader: reader,
		store:  store,
		nowFn:  time.Now,
	}
}

// RunOnce reconciles every bot. One bot's exchange-read failure must not
// abort the pass for the others, so per-bot errors are logged and counted,
// never propagated mid-pass.
func (r *Runner) RunOnce(ctx context.Context) {
	var failed int
	for _, bot := range r.bots {
		if err := r.reconcileBot(ctx, bot); err != nil {
			failed++
			logger.Warnf("reconcile: bot=%s %v", bot.ID, err)
		}
	}
	if failed > 0 {
		logger.Warnf("reconcile: pass finished with %d/%d bots failed", failed, len(r.bots))
	}
}

func (r *Runner) reconcileBot(ctx context.Context, bot strategy.Bot) error {
	local, err := r.store.ActivePosition(ctx, bot.ID, bot.Symbol)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	snapshots, err := r.reader.GetOpenPositions(ctx, bot.Symbol)
	if err != nil {
		return fmt.Errorf("read exchange positions: %w", err)
	}

	result := Reconcile(bot, local, snapshots, r.nowFn().UnixMilli())
	if len(result.Positions) == 0 && len(result.Events) == 0 {
		return nil
	}

	// Positions and events are independent audit/state records, not a
	// transaction: persist them in parallel and let one failure surface
	// without blocking the rest.
	var g errgroup.Group
	for i := range result.Positions {
		p := result.Positions[i]
		g.Go(func() error {
			if err := r.store.SavePosition(ctx, &p); err != nil {
				return fmt.Errorf("save position %s: %w", p.ID, err)
			}
			return nil
		})
	}
	for i := range result.Events {
		e := result.Events[i]
		g.Go(func() error {
			if err := r.store.AppendEvent(ctx, &e); err != nil {
				return fmt.Errorf("append event %s: %w", e.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
