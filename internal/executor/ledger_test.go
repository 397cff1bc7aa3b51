package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/ledger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

var outcomeBot = strategy.Bot{ID: "bot-1", ExchangeID: "binance", Symbol: "ETHUSDT", Timeframe: "15m"}

func TestDeriveOutcomeSnapshotIsGroundTruth(t *testing.T) {
	result := strategy.ProcessingResult{
		Status: strategy.StatusOrderSubmitted,
		Side:   ledger.SideLong,
		Order: &strategy.SubmittedOrder{
			Purpose: ledger.OrderPurposeEntry, Status: ledger.OrderFilled,
			Side: ledger.SideLong, Quantity: 2, Price: 99,
			ExecutedQuantity: 2, ExecutedPrice: 100.5, ClientOID: "oid-123",
		},
		Snapshot: &market.ExchangePositionSnapshot{
			Symbol: "ETHUSDT", Side: "long", Quantity: 2, AvgEntryPrice: 100.5, IsOpen: true,
		},
	}

	out := DeriveOutcome(outcomeBot, nil, result, 5000)

	require.NotNil(t, out.Position)
	assert.Equal(t, ledger.PositionOpen, out.Position.Status)
	assert.Equal(t, ledger.SideLong, out.Position.Side)
	assert.Equal(t, 2.0, out.Position.Quantity)
	assert.Equal(t, 100.5, out.Position.AvgEntryPrice)
	assert.Equal(t, int64(5000), out.Position.OpenedAtMs)

	require.NotNil(t, out.Order)
	assert.Equal(t, "oid-123", out.Order.ID, "client order id wins as the order id")

	require.Len(t, out.Fills, 1)
	assert.Equal(t, "oid-123-fill", out.Fills[0].ID)
	assert.Equal(t, "exchange-snapshot", out.Fills[0].Source)
	assert.Equal(t, 2.0, out.Fills[0].Quantity)
	assert.Nil(t, out.Event)
}

func TestDeriveOutcomeSnapshotWithReduceOrder(t *testing.T) {
	prior := &ledger.PositionRecord{
		ID: "pos-1", BotID: "bot-1", Symbol: "ETHUSDT", Side: ledger.SideLong,
		Status: ledger.PositionOpen, Quantity: 3, RemainingQuantity: 3,
		AvgEntryPrice: 100, OpenedAtMs: 1000,
	}
	result := strategy.ProcessingResult{
		Status: strategy.StatusOrderSubmitted,
		Order: &strategy.SubmittedOrder{
			Purpose: ledger.OrderPurposeReduce, Status: ledger.OrderFilled,
			Side: ledger.SideShort, Quantity: 1,
		},
		Snapshot: &market.ExchangePositionSnapshot{
			Side: "long", Quantity: 2, AvgEntryPrice: 100, IsOpen: true,
		},
	}

	out := DeriveOutcome(outcomeBot, prior, result, 5000)

	require.NotNil(t, out.Position)
	assert.Equal(t, "pos-1", out.Position.ID, "prior id is kept")
	assert.Equal(t, ledger.PositionReducing, out.Position.Status)
	assert.Equal(t, 2.0, out.Position.Quantity, "snapshot quantity overrides the ledger")
	assert.Equal(t, int64(1000), out.Position.OpenedAtMs)
	assert.Empty(t, out.Fills, "only confirmed entry fills are synthesized")
}

func TestDeriveOutcomeEntryOrderStates(t *testing.T) {
	cases := []struct {
		status ledger.OrderStatus
		want   ledger.PositionStatus
	}{
		{ledger.OrderSubmitted, ledger.PositionEntryPending},
		{ledger.OrderFilled, ledger.PositionOpen},
		{ledger.OrderRejected, ledger.PositionError},
	}
	for _, tc := range cases {
		result := strategy.ProcessingResult{
			Status: strategy.StatusOrderSubmitted,
			Order: &strategy.SubmittedOrder{
				Purpose: ledger.OrderPurposeEntry, Status: tc.status,
				Side: ledger.SideShort, Quantity: 1.5, Price: 200,
			},
		}
		out := DeriveOutcome(outcomeBot, nil, result, 9000)
		require.NotNil(t, out.Position, "status %s", tc.status)
		assert.Equal(t, tc.want, out.Position.Status, "status %s", tc.status)
		assert.Equal(t, ledger.SideShort, out.Position.Side)
		assert.Equal(t, 1.5, out.Position.Quantity)
		assert.Equal(t, 200.0, out.Position.AvgEntryPrice)
		require.NotNil(t, out.Order)
		assert.Equal(t, "bot-1-short-9000", out.Position.ID)
	}
}

func TestDeriveOutcomeCloseOrder(t *testing.T) {
	prior := &ledger.PositionRecord{
		ID: "pos-1", BotID: "bot-1", Symbol: "ETHUSDT", Side: ledger.SideLong,
		Status: ledger.PositionOpen, Quantity: 2, RemainingQuantity: 2, OpenedAtMs: 1000,
	}

	submitted := strategy.ProcessingResult{
		Status: strategy.StatusOrderSubmitted,
		Order:  &strategy.SubmittedOrder{Purpose: ledger.OrderPurposeClose, Status: ledger.OrderSubmitted, Quantity: 2},
	}
	out := DeriveOutcome(outcomeBot, prior, submitted, 5000)
	assert.Equal(t, ledger.PositionClosing, out.Position.Status)
	assert.Equal(t, 2.0, out.Position.RemainingQuantity)
	assert.Zero(t, out.Position.ClosedAtMs)

	filled := strategy.ProcessingResult{
		Status: strategy.StatusOrderSubmitted,
		Order:  &strategy.SubmittedOrder{Purpose: ledger.OrderPurposeClose, Status: ledger.OrderFilled, Quantity: 2},
	}
	out = DeriveOutcome(outcomeBot, prior, filled, 6000)
	assert.Equal(t, ledger.PositionClosed, out.Position.Status)
	assert.Zero(t, out.Position.RemainingQuantity)
	assert.Equal(t, int64(6000), out.Position.ClosedAtMs)

	// Prior is untouched: derivation is pure.
	assert.Equal(t, ledger.PositionOpen, prior.Status)
	assert.Equal(t, 2.0, prior.RemainingQuantity)
}

func TestDeriveOutcomeReconciliationHint(t *testing.T) {
	prior := &ledger.PositionRecord{
		ID: "pos-1", BotID: "bot-1", Symbol: "ETHUSDT", Side: ledger.SideLong,
		Status: ledger.PositionOpen, Quantity: 2,
	}
	result := strategy.ProcessingResult{
		Status:         strategy.StatusSyncedPosition,
		Reconciliation: &strategy.ReconciliationHint{Status: ledger.EventDrift, Message: "qty mismatch"},
	}

	out := DeriveOutcome(outcomeBot, prior, result, 7000)

	assert.Equal(t, ledger.PositionReconciling, out.Position.Status)
	require.NotNil(t, out.Event)
	assert.Equal(t, "pos-1-hint-7000", out.Event.ID)
	assert.Equal(t, ledger.EventDrift, out.Event.Status)
	assert.Equal(t, "qty mismatch", out.Event.Message)
}

func TestDeriveOutcomeSyncedWithoutSnapshotIsAmbiguous(t *testing.T) {
	prior := &ledger.PositionRecord{
		ID: "pos-1", BotID: "bot-1", Symbol: "ETHUSDT", Side: ledger.SideLong,
		Status: ledger.PositionOpen, Quantity: 2,
	}
	result := strategy.ProcessingResult{Status: strategy.StatusSyncedPosition}

	out := DeriveOutcome(outcomeBot, prior, result, 7000)

	assert.Equal(t, ledger.PositionReconciling, out.Position.Status)
	assert.Equal(t, int64(7000), out.Position.LastExchangeSyncTimeMs)
	assert.Nil(t, out.Event, "the reconciliation pass owns drift events for missing snapshots")
}

func TestDeriveOutcomePassThrough(t *testing.T) {
	prior := &ledger.PositionRecord{ID: "pos-1", Status: ledger.PositionOpen}
	out := DeriveOutcome(outcomeBot, prior, strategy.ProcessingResult{Status: strategy.StatusNoSignal}, 7000)
	assert.Same(t, prior, out.Position)
	assert.Nil(t, out.Order)
	assert.Nil(t, out.Event)

	out = DeriveOutcome(outcomeBot, nil, strategy.ProcessingResult{Status: strategy.StatusDryRun}, 7000)
	assert.Nil(t, out.Position)
}

func TestDeriveOutcomeIsDeterministic(t *testing.T) {
	result := strategy.ProcessingResult{
		Status: strategy.StatusOrderSubmitted,
		Order: &strategy.SubmittedOrder{
			Purpose: ledger.OrderPurposeEntry, Status: ledger.OrderSubmitted,
			Side: ledger.SideLong, Quantity: 1,
		},
	}
	a := DeriveOutcome(outcomeBot, nil, result, 12345)
	b := DeriveOutcome(outcomeBot, nil, result, 12345)
	assert.Equal(t, a.Position.ID, b.Position.ID)
	assert.Equal(t, a.Order.ID, b.Order.ID)
}
