package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/ledger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

var reconBot = strategy.Bot{ID: "bot-1", ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"}

func openSnap(side string, qty, price float64) market.ExchangePositionSnapshot {
	return market.ExchangePositionSnapshot{
		Symbol: "ETHUSDT", Side: side, Quantity: qty, AvgEntryPrice: price, IsOpen: true,
	}
}

func localOpen(status ledger.PositionStatus, qty, price float64) *ledger.PositionRecord {
	return &ledger.PositionRecord{
		ID: "pos-1", BotID: "bot-1", Symbol: "ETHUSDT", Side: ledger.SideLong,
		Status: status, Quantity: qty, RemainingQuantity: qty, AvgEntryPrice: price,
	}
}

func TestReconcileNothingToDo(t *testing.T) {
	out := Reconcile(reconBot, nil, nil, 1000)
	assert.Empty(t, out.Positions)
	assert.Empty(t, out.Events)

	// A closed snapshot is not an orphan.
	closed := market.ExchangePositionSnapshot{Symbol: "ETHUSDT", Side: "long", IsOpen: false}
	out = Reconcile(reconBot, nil, []market.ExchangePositionSnapshot{closed}, 1000)
	assert.Empty(t, out.Positions)
	assert.Empty(t, out.Events)
}

func TestReconcileOrphanSnapshot(t *testing.T) {
	out := Reconcile(reconBot, nil, []market.ExchangePositionSnapshot{openSnap("short", 2, 100)}, 1000)

	require.Len(t, out.Positions, 1)
	p := out.Positions[0]
	assert.Equal(t, "bot-1-recon-short", p.ID)
	assert.Equal(t, ledger.SideShort, p.Side)
	assert.Equal(t, ledger.PositionReconciling, p.Status)
	assert.Equal(t, 2.0, p.Quantity)
	assert.Equal(t, int64(1000), p.LastExchangeSyncTimeMs)

	require.Len(t, out.Events, 1)
	assert.Equal(t, ledger.EventDrift, out.Events[0].Status)
	assert.Equal(t, "bot-1-recon-short", out.Events[0].PositionID)
}

func TestReconcileOrphanSymbolFallsBackToBot(t *testing.T) {
	snap := openSnap("long", 1, 50)
	snap.Symbol = ""
	out := Reconcile(reconBot, nil, []market.ExchangePositionSnapshot{snap}, 1000)
	require.Len(t, out.Positions, 1)
	assert.Equal(t, "ETHUSDT", out.Positions[0].Symbol)
}

func TestReconcileLocalMissingOnExchange(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100), nil, 1000)

	require.Len(t, out.Positions, 1)
	assert.Equal(t, "pos-1", out.Positions[0].ID)
	assert.Equal(t, ledger.PositionReconciling, out.Positions[0].Status)
	require.Len(t, out.Events, 1)
	assert.Equal(t, ledger.EventDrift, out.Events[0].Status)
	assert.Equal(t, "bot-1-pos-1-1000", out.Events[0].ID)
}

func TestReconcileQuantityTolerance(t *testing.T) {
	// Inside the 1e-8 absolute tolerance.
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2+1e-9, 100)}, 1000)
	assert.Empty(t, out.Events, "sub-tolerance quantity drift stays quiet")
	require.Len(t, out.Positions, 1)
	assert.Equal(t, ledger.PositionOpen, out.Positions[0].Status)

	// Outside the tolerance.
	out = Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2+1e-7, 100)}, 1000)
	require.Len(t, out.Events, 1)
	assert.Equal(t, ledger.EventDrift, out.Events[0].Status)
	assert.Equal(t, ledger.PositionReconciling, out.Positions[0].Status)
}

func TestReconcilePriceTolerance(t *testing.T) {
	// 4 bps off 100.00 is within the 5 bps band.
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 100.04)}, 1000)
	assert.Empty(t, out.Events)
	assert.Equal(t, 100.04, out.Positions[0].AvgEntryPrice, "exchange price is adopted on match")

	// 6 bps is drift.
	out = Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 100.06)}, 1000)
	require.Len(t, out.Events, 1)
	assert.Equal(t, ledger.EventDrift, out.Events[0].Status)
}

func TestReconcileZeroPriceDemandsExactEquality(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 0),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 0)}, 1000)
	assert.Empty(t, out.Events)

	out = Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 0),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 0.0001)}, 1000)
	require.Len(t, out.Events, 1)
	assert.Equal(t, ledger.EventDrift, out.Events[0].Status)
}

func TestReconcileRestoresOpenAndRecordsOK(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionReconciling, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 100)}, 1000)

	require.Len(t, out.Positions, 1)
	assert.Equal(t, ledger.PositionOpen, out.Positions[0].Status)
	require.Len(t, out.Events, 1)
	assert.Equal(t, ledger.EventOK, out.Events[0].Status)
}

func TestReconcileEntryPendingConfirmsQuietly(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionEntryPending, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 100)}, 1000)

	require.Len(t, out.Positions, 1)
	assert.Equal(t, ledger.PositionOpen, out.Positions[0].Status)
	assert.Empty(t, out.Events, "entry-pending never announced drift, so no ok event")
}

func TestReconcileSteadyStateIsQuiet(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{openSnap("long", 2, 100)}, 1000)
	assert.Empty(t, out.Events)
	require.Len(t, out.Positions, 1)
	assert.Equal(t, ledger.PositionOpen, out.Positions[0].Status)
}

func TestReconcileOppositeSideSnapshotIsOrphan(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{
			openSnap("short", 1, 90),
			openSnap("long", 2, 100),
		}, 1000)

	// The long snapshot matches the local position; the short one is an
	// orphan tracked separately.
	require.Len(t, out.Positions, 2)
	ids := []string{out.Positions[0].ID, out.Positions[1].ID}
	assert.Contains(t, ids, "pos-1")
	assert.Contains(t, ids, "bot-1-recon-short")
	require.Len(t, out.Events, 1)
	assert.Equal(t, "bot-1-recon-short", out.Events[0].PositionID)
}

func TestReconcileIgnoresSameSideDuplicateSnapshot(t *testing.T) {
	out := Reconcile(reconBot, localOpen(ledger.PositionOpen, 2, 100),
		[]market.ExchangePositionSnapshot{
			openSnap("long", 2, 100),
			openSnap("long", 2, 100),
		}, 1000)

	require.Len(t, out.Positions, 1, "the second same-side snapshot is not an orphan")
	assert.Equal(t, "pos-1", out.Positions[0].ID)
	assert.Empty(t, out.Events)
}
