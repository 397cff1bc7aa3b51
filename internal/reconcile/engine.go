package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tidemark/internal/ledger"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

var (
	quantityTolerance = decimal.NewFromFloat(1e-8)
	priceToleranceBps = decimal.NewFromInt(5)
	bpsFactor         = decimal.NewFromInt(10_000)
)

// Result is the set of writes one reconciliation pass produced for a bot.
// The engine is pure; callers persist.
type Result struct {
	Positions []ledger.PositionRecord
	Events    []ledger.ReconciliationEventRecord
}

// Reconcile compares the bot's local position against the exchange's open
// position snapshots.
//
//   - No local, no snapshots: nothing to do.
//   - Snapshots without a local match are orphans: a reconciling position is
//     synthesized per snapshot and drift recorded.
//   - A local position without a matching-side snapshot is marked reconciling
//     with drift recorded.
//   - A matching snapshot outside tolerance marks the local position
//     reconciling with drift recorded.
//   - A matching snapshot within tolerance restores open only from
//     entry-pending/reconciling, and records ok only on the
//     reconciling→open transition so steady state stays quiet.
func Reconcile(bot strategy.Bot, local *ledger.PositionRecord, snapshots []market.ExchangePositionSnapshot, nowMs int64) Result {
	var out Result

	open := make([]market.ExchangePositionSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.IsOpen {
			open = append(open, s)
		}
	}

	if local == nil {
		for _, snap := range open {
			out.append(synthesizeOrphan(bot, snap, nowMs))
		}
		return out
	}

	var match *market.ExchangePositionSnapshot
	for i := range open {
		if sideOf(open[i].Side) == local.Side && match == nil {
			match = &open[i]
			continue
		}
		// Snapshots of the other side are orphans regardless of the local
		// position's fate. Extra same-side snapshots beyond the first match
		// are ignored: one-way mode reports at most one per side.
		if sideOf(open[i].Side) != local.Side {
			out.append(synthesizeOrphan(bot, open[i], nowMs))
		}
	}

	p := *local
	p.LastExchangeSyncTimeMs = nowMs

	if match == nil {
		p.Status = ledger.PositionReconciling
		out.Positions = append(out.Positions, p)
		out.Events = append(out.Events, driftEvent(bot, p.ID,
			fmt.Sprintf("local %s position qty=%v missing on exchange", p.Side, p.Quantity), nowMs))
		return out
	}

	if !quantityMatches(p.Quantity, match.Quantity) || !priceMatches(p.AvgEntryPrice, match.AvgEntryPrice) {
		p.Status = ledger.PositionReconciling
		out.Positions = append(out.Positions, p)
		out.Events = append(out.Events, driftEvent(bot, p.ID,
			fmt.Sprintf("ledger/exchange mismatch: qty %v vs %v, price %v vs %v",
				local.Quantity, match.Quantity, local.AvgEntryPrice, match.AvgEntryPrice), nowMs))
		return out
	}

	wasReconciling := p.Status == ledger.PositionReconciling
	if p.Status == ledger.PositionEntryPending || p.Status == ledger.PositionReconciling {
		p.Status = ledger.PositionOpen
	}
	p.Quantity = match.Quantity
	p.RemainingQuantity = match.Quantity
	p.AvgEntryPrice = match.AvgEntryPrice
	out.Positions = append(out.Positions, p)
	if wasReconciling {
		out.Events = append(out.Events, ledger.ReconciliationEventRecord{
			ID:          eventID(bot.ID, p.ID, nowMs),
			BotID:       bot.ID,
			PositionID:  p.ID,
			Symbol:      bot.Symbol,
			Status:      ledger.EventOK,
			Message:     "position confirmed against exchange",
			CreatedAtMs: nowMs,
		})
	}
	return out
}

func synthesizeOrphan(bot strategy.Bot, snap market.ExchangePositionSnapshot, nowMs int64) Result {
	side := sideOf(snap.Side)
	symbol := snap.Symbol
	if symbol == "" {
		symbol = bot.Symbol
	}
	p := ledger.PositionRecord{
		ID:                     fmt.Sprintf("%s-recon-%s", bot.ID, side),
		BotID:                  bot.ID,
		Symbol:                 symbol,
		Side:                   side,
		Status:                 ledger.PositionReconciling,
		Quantity:               snap.Quantity,
		RemainingQuantity:      snap.Quantity,
		AvgEntryPrice:          snap.AvgEntryPrice,
		LastExchangeSyncTimeMs: nowMs,
	}
	return Result{
		Positions: []ledger.PositionRecord{p},
		Events: []ledger.ReconciliationEventRecord{driftEvent(bot, p.ID,
			fmt.Sprintf("exchange has an open %s position qty=%v the ledger doesn't know about", side, snap.Quantity), nowMs)},
	}
}

// quantityMatches applies the absolute quantity tolerance of 1e-8.
func quantityMatches(local, exchange float64) bool {
	diff := decimal.NewFromFloat(local).Sub(decimal.NewFromFloat(exchange)).Abs()
	return diff.Cmp(quantityTolerance) <= 0
}

// priceMatches applies a 5 bps relative tolerance when both prices are
// present; a zero or absent price on either side demands exact equality.
func priceMatches(local, exchange float64) bool {
	if local == 0 || exchange == 0 {
		return local == exchange
	}
	l := decimal.NewFromFloat(local)
	e := decimal.NewFromFloat(exchange)
	bps := l.Sub(e).Abs().Div(e).Mul(bpsFactor)
	return bps.Cmp(priceToleranceBps) <= 0
}

func driftEvent(bot strategy.Bot, positionID, message string, nowMs int64) ledger.ReconciliationEventRecord {
	return ledger.ReconciliationEventRecord{
		ID:          eventID(bot.ID, positionID, nowMs),
		BotID:       bot.ID,
		PositionID:  positionID,
		Symbol:      bot.Symbol,
		Status:      ledger.EventDrift,
		Message:     message,
		CreatedAtMs: nowMs,
	}
}

func eventID(botID, positionID string, nowMs int64) string {
	return fmt.Sprintf("%s-%s-%d", botID, positionID, nowMs)
}

func sideOf(raw string) ledger.Side {
	if strings.EqualFold(strings.TrimSpace(raw), "short") || strings.EqualFold(strings.TrimSpace(raw), "sell") {
		return ledger.SideShort
	}
	return ledger.SideLong
}

func (r *Result) append(other Result) {
	r.Positions = append(r.Positions, other.Positions...)
	r.Events = append(r.Events, other.Events...)
}
