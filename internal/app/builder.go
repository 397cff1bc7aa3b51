package app

import (
	"context"
	"fmt"

	"tidemark/internal/config"
	"tidemark/internal/cursor"
	"tidemark/internal/dispatch"
	"tidemark/internal/executor"
	"tidemark/internal/feed"
	"tidemark/internal/gateway/binance"
	"tidemark/internal/indicator"
	"tidemark/internal/ledger"
	"tidemark/internal/logger"
	"tidemark/internal/reconcile"
	redisstore "tidemark/internal/store/redis"
	"tidemark/internal/store/runs"
	"tidemark/internal/store/sqlite"
	"tidemark/internal/strategy"
	opshttp "tidemark/internal/transport/http/ops"
)

// AppBuilder assembles the application from configuration. The overridable
// constructor funcs let tests swap heavyweight dependencies.
type AppBuilder struct {
	cfg *config.Config

	sourceFn func(binance.Config) (*binance.Source, error)

	stateOverride    feed.StateStore
	snapshotOverride feed.SnapshotStore
	cursorOverride   cursor.Store
	ledgerOverride   ledger.Store
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: binance.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// storeStack bundles the persistence interfaces one backend serves.
type storeStack struct {
	states  feed.StateStore
	snaps   feed.SnapshotStore
	cursors cursor.Store
	ledger  ledger.Store
	runs    *runs.Store
	closeFn func() error
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	stack, err := b.buildStores()
	if err != nil {
		return nil, err
	}

	refreshQueue, jobQueue, err := b.buildQueues(ctx, stack)
	if err != nil {
		stack.close()
		return nil, err
	}

	source, err := b.sourceFn(binance.Config{
		RESTBaseURL:  cfg.Exchange.RESTBaseURL,
		HTTPTimeout:  cfg.Exchange.HTTPTimeout,
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		ProxyEnabled: cfg.Exchange.ProxyEnabled,
		RESTProxyURL: cfg.Exchange.RESTProxyURL,
	})
	if err != nil {
		stack.close()
		return nil, fmt.Errorf("build exchange source: %w", err)
	}

	bots := cfg.StrategyBots()
	manifests := strategy.NewStaticManifest()
	engine := indicator.NewEngine()

	dispatcher := dispatch.New(bots, manifests, stack.states, stack.cursors, refreshQueue, jobQueue, cfg.Dispatch.EpsilonMs)
	marketWorker := feed.NewMarketWorker(source, stack.states, stack.snaps, refreshQueue)
	indicatorWorker := feed.NewIndicatorWorker(stack.states, stack.snaps, refreshQueue, engine)

	var recorder executor.RunRecorder
	if stack.runs != nil {
		recorder = stack.runs
	}
	worker := executor.NewWorker(bots, manifests, stack.states, stack.snaps, stack.cursors, stack.ledger,
		recorder, strategy.NewDryRunProcessor(), cfg.Dispatch.EpsilonMs)

	var reconciler *reconcile.Runner
	if cfg.Reconcile.Enabled {
		reconciler = reconcile.NewRunner(bots, source, stack.ledger)
	}

	var ops *opshttp.Server
	if cfg.Ops.Enabled {
		var runsReader opshttp.RunsReader
		if stack.runs != nil {
			runsReader = stack.runs
		}
		ops, err = opshttp.NewServer(opshttp.ServerConfig{
			Addr:    cfg.Ops.Listen,
			States:  stack.states,
			Snaps:   stack.snaps,
			Cursors: stack.cursors,
			Ledger:  stack.ledger,
			Runs:    runsReader,
			Refresh: refreshQueue,
			Config:  cfg,
		})
		if err != nil {
			stack.close()
			return nil, fmt.Errorf("build ops server: %w", err)
		}
	}

	return &App{
		cfg:             cfg,
		stack:           stack,
		dispatcher:      dispatcher,
		marketWorker:    marketWorker,
		indicatorWorker: indicatorWorker,
		worker:          worker,
		refreshQueue:    refreshQueue,
		jobQueue:        jobQueue,
		reconciler:      reconciler,
		ops:             ops,
	}, nil
}

func (b *AppBuilder) buildStores() (*storeStack, error) {
	cfg := b.cfg
	stack := &storeStack{}

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		runStore, err := runs.New(cfg.Store.RunsPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open runs store: %w", err)
		}
		stack.states = db
		stack.snaps = db
		stack.cursors = db
		stack.ledger = db
		stack.runs = runStore
		stack.closeFn = func() error {
			runStore.Close()
			return db.Close()
		}
	case "memory":
		stack.states = feed.NewMemoryStateStore()
		stack.snaps = feed.NewMemorySnapshotStore()
		stack.cursors = cursor.NewMemoryStore()
		stack.ledger = ledger.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if b.stateOverride != nil {
		stack.states = b.stateOverride
	}
	if b.snapshotOverride != nil {
		stack.snaps = b.snapshotOverride
	}
	if b.cursorOverride != nil {
		stack.cursors = b.cursorOverride
	}
	if b.ledgerOverride != nil {
		stack.ledger = b.ledgerOverride
	}
	return stack, nil
}

// buildQueues wires the refresh and job queues. With Redis enabled the queues
// and snapshot blobs move there so several processes can share the load.
func (b *AppBuilder) buildQueues(ctx context.Context, stack *storeStack) (feed.RefreshQueue, dispatch.JobQueue, error) {
	cfg := b.cfg
	if !cfg.Redis.Enabled {
		return feed.NewMemoryRefreshQueue(0), dispatch.NewMemoryJobQueue(0), nil
	}
	client, err := redisstore.NewClient(ctx, redisstore.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, nil, err
	}
	queues := redisstore.NewQueues(client, cfg.Redis.Prefix)
	if b.snapshotOverride == nil {
		stack.snaps = redisstore.NewSnapshotStore(client, cfg.Redis.Prefix, cfg.Redis.SnapshotTTL)
	}
	// Without sqlite the cursors have no durable home, so they move to Redis
	// too and stay shared across processes.
	if cfg.Store.Driver == "memory" && b.cursorOverride == nil {
		stack.cursors = redisstore.NewCursorStore(client, cfg.Redis.Prefix)
	}
	logger.Infof("redis queues enabled at %s (prefix=%s)", cfg.Redis.Addr, cfg.Redis.Prefix)
	return queues, queues, nil
}

func (s *storeStack) close() {
	if s == nil || s.closeFn == nil {
		return
	}
	if err := s.closeFn(); err != nil {
		logger.Warnf("closing stores: %v", err)
	}
}
