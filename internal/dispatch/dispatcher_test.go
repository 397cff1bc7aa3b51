package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/cursor"
	"tidemark/internal/feed"
	"tidemark/internal/strategy"
)

const (
	testFrameMs = int64(15 * 60 * 1000)
	testEpsilon = int64(2000)
)

func testBot() strategy.Bot {
	return strategy.Bot{
		ID:           "bot-1",
		ExchangeID:   "binance",
		Symbol:       "ETHUSDT",
		Timeframe:    "15m",
		LookbackBars: 50,
		Indicators: []strategy.IndicatorRequirement{{
			Role:        strategy.RoleExecution,
			Timeframe:   "15m",
			IndicatorID: "ema",
			Source:      "close",
			Params:      map[string]any{"period": 21},
		}},
	}
}

type dispatchFixture struct {
	states  *feed.MemoryStateStore
	cursors *cursor.MemoryStore
	refresh *feed.MemoryRefreshQueue
	jobs    *MemoryJobQueue
	d       *Dispatcher
	now     int64
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		states:  feed.NewMemoryStateStore(),
		cursors: cursor.NewMemoryStore(),
		refresh: feed.NewMemoryRefreshQueue(16),
		jobs:    NewMemoryJobQueue(16),
		now:     int64(1_700_000_700_000),
	}
	f.d = New([]strategy.Bot{testBot()}, strategy.NewStaticManifest(), f.states, f.cursors, f.refresh, f.jobs, testEpsilon)
	f.d.nowFn = func() time.Time { return time.UnixMilli(f.now) }
	return f
}

func (f *dispatchFixture) boundary() int64 {
	return (f.now + testEpsilon) / testFrameMs * testFrameMs - 1
}

func (f *dispatchFixture) makeFresh(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	boundary := f.boundary()
	require.NoError(t, f.states.PutMarket(ctx, &feed.MarketFeedState{
		ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m",
		Status: feed.StatusReady, LastClosedCandleTime: boundary,
	}))
	hash, err := feed.ParamsHash("ema", "close", map[string]any{"period": 21})
	require.NoError(t, err)
	require.NoError(t, f.states.PutIndicator(ctx, &feed.IndicatorFeedState{
		ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m",
		IndicatorID: "ema", Source: "close", Params: map[string]any{"period": 21},
		ParamsHash: hash, Status: feed.StatusReady,
		LastComputedCandleTime: boundary,
	}))
}

func TestDispatcherStaleFeedsRequestRefreshWithoutJob(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	f.d.Tick(ctx)

	assert.Zero(t, f.jobs.Pending(), "no job while feeds are stale")
	assert.Equal(t, 1, f.refresh.PendingMarket())
	assert.Equal(t, 1, f.refresh.PendingIndicator())

	req, ok, err := f.refresh.DequeueMarket(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dispatch-stale", req.Reason)
	assert.Equal(t, f.boundary(), req.RequiredAt)
	assert.Equal(t, 50, req.LookbackBars)

	// The first tick also created the states and registered the consumer.
	st, err := f.states.GetMarket(ctx, feed.MarketKey{ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.RequiredByCount)
	assert.Equal(t, 50, st.MaxLookbackBars)
}

func TestDispatcherFreshFeedsDispatchJob(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	f.makeFresh(t)

	f.d.Tick(ctx)

	require.Equal(t, 1, f.jobs.Pending())
	job, ok, err := f.jobs.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bot-1", job.BotID)
	assert.Equal(t, f.boundary(), job.ClosedCandleTime)
	assert.Equal(t, f.now, job.DispatchedAtMs)
	assert.Zero(t, f.refresh.PendingMarket())
}

func TestDispatcherNotDueSkipsEverything(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	f.makeFresh(t)

	_, err := f.cursors.Advance(ctx, "bot-1", "15m", f.boundary(), f.now)
	require.NoError(t, err)

	f.d.Tick(ctx)

	assert.Zero(t, f.jobs.Pending(), "cursor at boundary means not due")
	assert.Zero(t, f.refresh.PendingMarket())
	assert.Zero(t, f.refresh.PendingIndicator())
}

func TestDispatcherRegistersConsumerOnce(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	f.d.Tick(ctx)
	f.d.Tick(ctx)
	f.d.Tick(ctx)

	st, err := f.states.GetMarket(ctx, feed.MarketKey{ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.RequiredByCount, "repeated ticks must not inflate the consumer count")
}

func TestDispatcherAdvancesToNextCandle(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()
	f.makeFresh(t)

	f.d.Tick(ctx)
	first, _, err := f.jobs.Dequeue(ctx)
	require.NoError(t, err)
	_, err = f.cursors.Advance(ctx, "bot-1", "15m", first.ClosedCandleTime, f.now)
	require.NoError(t, err)

	// One frame later with feeds refreshed, the next boundary dispatches.
	f.now += testFrameMs
	f.makeFresh(t)
	f.d.Tick(ctx)

	require.Equal(t, 1, f.jobs.Pending())
	second, _, err := f.jobs.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ClosedCandleTime+testFrameMs, second.ClosedCandleTime)
}
