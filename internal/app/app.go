package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tidemark/internal/config"
	"tidemark/internal/dispatch"
	"tidemark/internal/executor"
	"tidemark/internal/feed"
	"tidemark/internal/logger"
	"tidemark/internal/reconcile"
	"tidemark/internal/scheduler"
	opshttp "tidemark/internal/transport/http/ops"
)

// App orchestrates the coordination layer: dispatch ticks, feed workers,
// execution workers, reconciliation passes and the ops HTTP surface.
type App struct {
	cfg *config.Config

	stack           *storeStack
	dispatcher      *dispatch.Dispatcher
	marketWorker    *feed.MarketWorker
	indicatorWorker *feed.IndicatorWorker
	worker          *executor.Worker
	refreshQueue    feed.RefreshQueue
	jobQueue        dispatch.JobQueue
	reconciler      *reconcile.Runner
	ops             *opshttp.Server
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts every component and blocks until ctx is canceled or one of them
// fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.stack.close()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx, a.cfg.Dispatch.TickInterval, a.cfg.Dispatch.TickOffset)
		sched.RunImmediately = true
		sched.Start(func() { a.dispatcher.Tick(ctx) })
		return nil
	})

	for i := 0; i < a.cfg.Feeds.MarketWorkers; i++ {
		group.Go(func() error { return a.runMarketWorker(ctx) })
	}
	for i := 0; i < a.cfg.Feeds.IndicatorWorkers; i++ {
		group.Go(func() error { return a.runIndicatorWorker(ctx) })
	}
	for i := 0; i < a.cfg.Dispatch.Workers; i++ {
		group.Go(func() error { return a.runExecutionWorker(ctx) })
	}

	if a.reconciler != nil {
		group.Go(func() error {
			sched := scheduler.NewIntervalScheduler(ctx, a.cfg.Reconcile.Interval)
			sched.RunImmediately = true
			sched.Start(func() { a.reconciler.RunOnce(ctx) })
			return nil
		})
	}

	if a.ops != nil {
		group.Go(func() error {
			if err := a.ops.Run(ctx); err != nil {
				return fmt.Errorf("ops server error: %w", err)
			}
			return nil
		})
	}

	logger.Infof("tidemark running: %d bots, dispatch tick=%s epsilon=%dms",
		len(a.cfg.Bots), a.cfg.Dispatch.TickInterval, a.cfg.Dispatch.EpsilonMs)
	return group.Wait()
}

// Worker loops treat handler errors as per-item failures: log and keep
// consuming so one bad request cannot stall the queue.

func (a *App) runMarketWorker(ctx context.Context) error {
	for {
		req, ok, err := a.refreshQueue.DequeueMarket(ctx)
		if err != nil {
			return fmt.Errorf("dequeue market refresh: %w", err)
		}
		if !ok {
			return nil
		}
		if err := a.marketWorker.HandleBatch(ctx, []feed.MarketRefreshRequest{req}); err != nil {
			logger.Warnf("market worker: %v", err)
		}
	}
}

func (a *App) runIndicatorWorker(ctx context.Context) error {
	for {
		req, ok, err := a.refreshQueue.DequeueIndicator(ctx)
		if err != nil {
			return fmt.Errorf("dequeue indicator refresh: %w", err)
		}
		if !ok {
			return nil
		}
		if err := a.indicatorWorker.HandleBatch(ctx, []feed.IndicatorRefreshRequest{req}); err != nil {
			logger.Warnf("indicator worker: %v", err)
		}
	}
}

func (a *App) runExecutionWorker(ctx context.Context) error {
	for {
		job, ok, err := a.jobQueue.Dequeue(ctx)
		if err != nil {
			return fmt.Errorf("dequeue execution job: %w", err)
		}
		if !ok {
			return nil
		}
		if err := a.worker.HandleBatch(ctx, []dispatch.Job{job}); err != nil {
			logger.Warnf("execution worker: %v", err)
		}
	}
}
