package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/ledger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

type stubPositionReader struct {
	snapshots map[string][]market.ExchangePositionSnapshot
	errs      map[string]error
}

func (r *stubPositionReader) GetOpenPositions(ctx context.Context, symbol string) ([]market.ExchangePositionSnapshot, error) {
	if err := r.errs[symbol]; err != nil {
		return nil, err
	}
	return r.snapshots[symbol], nil
}

func TestRunnerIsolatesPerBotFailures(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	bots := []strategy.Bot{
		{ID: "bot-1", ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"},
		{ID: "bot-2", ExchangeID: "binance", Symbol: "BTCUSDT", Timeframe: "15m"},
	}
	reader := &stubPositionReader{
		snapshots: map[string][]market.ExchangePositionSnapshot{
			"BTCUSDT": {{Symbol: "BTCUSDT", Side: "long", Quantity: 1, AvgEntryPrice: 40000, IsOpen: true}},
		},
		errs: map[string]error{"ETHUSDT": errors.New("exchange timeout")},
	}

	r := NewRunner(bots, reader, store)
	r.nowFn = func() time.Time { return time.UnixMilli(5000) }
	r.RunOnce(ctx)

	// bot-1 failed, bot-2's orphan still got recorded.
	positions, err := store.ListPositions(ctx, "bot-2")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "bot-2-recon-long", positions[0].ID)
	assert.Equal(t, ledger.PositionReconciling, positions[0].Status)

	events, err := store.ListEvents(ctx, "bot-2", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventDrift, events[0].Status)

	none, err := store.ListPositions(ctx, "bot-1")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunnerQuietPassWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	bots := []strategy.Bot{{ID: "bot-1", ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"}}
	r := NewRunner(bots, &stubPositionReader{}, store)
	r.nowFn = func() time.Time { return time.UnixMilli(5000) }
	r.RunOnce(ctx)

	positions, orders, fills, events := store.Counts()
	assert.Zero(t, positions+orders+fills+events)
}
