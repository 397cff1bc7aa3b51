package executor

import (
	"fmt"
	"strings"

	"tidemark/internal/ledger"
	"tidemark/internal/strategy"
)

// Outcome is the set of ledger writes derived from one processing result.
type Outcome struct {
	Position *ledger.PositionRecord
	Order    *ledger.OrderRecord
	Fills    []ledger.FillRecord
	Event    *ledger.ReconciliationEventRecord
}

// DeriveOutcome turns the signal processor's result into ledger records. It
// is pure: callers persist the outputs. Identifiers are deterministic so a
// retried delivery of the same logical event never fabricates duplicate rows.
//
// Rules apply in priority order:
//  1. a live open exchange snapshot is ground truth for side/quantity/price;
//  2. an entry order drives entry-pending/open/error;
//  3. a close order against a prior position drives closing/closed/error;
//  4. an explicit reconciliation hint marks reconciling/error;
//  5. synced-position with no snapshot is ambiguous, treated as reconciling;
//  6. otherwise the prior position passes through unchanged.
func DeriveOutcome(bot strategy.Bot, prior *ledger.PositionRecord, result strategy.ProcessingResult, generatedAtMs int64) Outcome {
	switch {
	case result.Snapshot != nil && result.Snapshot.IsOpen:
		return deriveFromSnapshot(bot, prior, result, generatedAtMs)
	case result.Order != nil && result.Order.Purpose == ledger.OrderPurposeEntry:
		return deriveFromEntryOrder(bot, prior, result, generatedAtMs)
	case result.Order != nil && result.Order.Purpose == ledger.OrderPurposeClose && prior != nil:
		return deriveFromCloseOrder(bot, prior, result, generatedAtMs)
	case result.Reconciliation != nil && prior != nil &&
		(result.Reconciliation.Status == ledger.EventDrift || result.Reconciliation.Status == ledger.EventError):
		return deriveFromHint(bot, prior, result, generatedAtMs)
	case result.Status == strategy.StatusSyncedPosition && prior != nil:
		// Synced but no snapshot came along: the ambiguity is resolved
		// conservatively, the reconciliation pass will settle it.
		p := clonePosition(prior)
		p.Status = ledger.PositionReconciling
		p.LastExchangeSyncTimeMs = generatedAtMs
		return Outcome{Position: p}
	default:
		return Outcome{Position: prior}
	}
}

func deriveFromSnapshot(bot strategy.Bot, prior *ledger.PositionRecord, result strategy.ProcessingResult, generatedAtMs int64) Outcome {
	snap := result.Snapshot
	side := normalizeSide(snap.Side, result.Side)
	posID := positionID(bot.ID, side, prior, generatedAtMs)

	p := clonePosition(prior)
	if p == nil {
		p = &ledger.PositionRecord{BotID: bot.ID, Symbol: bot.Symbol}
	}
	p.ID = posID
	p.Side = side
	p.Status = ledger.PositionOpen
	if result.Order != nil {
		switch result.Order.Purpose {
		case ledger.OrderPurposeReduce:
			p.Status = ledger.PositionReducing
		case ledger.OrderPurposeClose:
			p.Status = ledger.PositionClosing
		}
	}
	p.Quantity = snap.Quantity
	p.RemainingQuantity = snap.Quantity
	p.AvgEntryPrice = snap.AvgEntryPrice
	if p.OpenedAtMs == 0 {
		p.OpenedAtMs = generatedAtMs
	}
	p.LastStrategyDecisionTimeMs = generatedAtMs
	p.LastExchangeSyncTimeMs = generatedAtMs

	out := Outcome{Position: p}
	if result.Order != nil {
		order := buildOrder(bot, posID, side, result.Order, generatedAtMs)
		out.Order = order
		if result.Order.Purpose == ledger.OrderPurposeEntry && result.Order.Status == ledger.OrderFilled {
			// The snapshot confirms the entry fill; no separate fill
			// stream exists, so the fill is synthesized here.
			out.Fills = []ledger.FillRecord{{
				ID:         order.ID + "-fill",
				PositionID: posID,
				OrderID:    order.ID,
				BotID:      bot.ID,
				Symbol:     bot.Symbol,
				Side:       side,
				Quantity:   snap.Quantity,
				Price:      snap.AvgEntryPrice,
				Source:     "exchange-snapshot",
				Reason:     "entry",
				FilledAtMs: generatedAtMs,
			}}
		}
	}
	return out
}

func deriveFromEntryOrder(bot strategy.Bot, prior *ledger.PositionRecord, result strategy.ProcessingResult, generatedAtMs int64) Outcome {
	o := result.Order
	side := normalizeSide(string(o.Side), result.Side)
	posID := positionID(bot.ID, side, prior, generatedAtMs)

	p := clonePosition(prior)
	if p == nil {
		p = &ledger.PositionRecord{BotID: bot.ID, Symbol: bot.Symbol}
	}
	p.ID = posID
	p.Side = side
	switch o.Status {
	case ledger.OrderRejected:
		p.Status = ledger.PositionError
	case ledger.OrderFilled:
		p.Status = ledger.PositionOpen
	default:
		p.Status = ledger.PositionEntryPending
	}
	qty := firstPositive(o.ExecutedQuantity, o.Quantity, priorQuantity(prior))
	price := firstPositive(o.ExecutedPrice, o.Price, priorPrice(prior))
	p.Quantity = qty
	p.RemainingQuantity = qty
	p.AvgEntryPrice = price
	if o.StopPrice > 0 {
		p.StopPrice = o.StopPrice
	}
	if o.Status == ledger.OrderFilled && p.OpenedAtMs == 0 {
		p.OpenedAtMs = generatedAtMs
	}
	p.LastStrategyDecisionTimeMs = generatedAtMs

	return Outcome{
		Position: p,
		Order:    buildOrder(bot, posID, side, o, generatedAtMs),
	}
}

func deriveFromCloseOrder(bot strategy.Bot, prior *ledger.PositionRecord, result strategy.ProcessingResult, generatedAtMs int64) Outcome {
	o := result.Order
	p := clonePosition(prior)
	switch o.Status {
	case ledger.OrderRejected:
		p.Status = ledger.PositionError
	case ledger.OrderFilled:
		p.Status = ledger.PositionClosed
		p.RemainingQuantity = 0
		p.ClosedAtMs = generatedAtMs
	default:
		p.Status = ledger.PositionClosing
	}
	p.LastStrategyDecisionTimeMs = generatedAtMs

	return Outcome{
		Position: p,
		Order:    buildOrder(bot, p.ID, p.Side, o, generatedAtMs),
	}
}

func deriveFromHint(bot strategy.Bot, prior *ledger.PositionRecord, result strategy.ProcessingResult, generatedAtMs int64) Outcome {
	hint := result.Reconciliation
	p := clonePosition(prior)
	if hint.Status == ledger.EventError {
		p.Status = ledger.PositionError
	} else {
		p.Status = ledger.PositionReconciling
	}
	p.LastExchangeSyncTimeMs = generatedAtMs

	return Outcome{
		Position: p,
		Event: &ledger.ReconciliationEventRecord{
			ID:          fmt.Sprintf("%s-hint-%d", p.ID, generatedAtMs),
			BotID:       bot.ID,
			PositionID:  p.ID,
			Symbol:      bot.Symbol,
			Status:      hint.Status,
			Message:     hint.Message,
			CreatedAtMs: generatedAtMs,
		},
	}
}

func buildOrder(bot strategy.Bot, posID string, side ledger.Side, o *strategy.SubmittedOrder, generatedAtMs int64) *ledger.OrderRecord {
	return &ledger.OrderRecord{
		ID:               orderID(posID, o, generatedAtMs),
		PositionID:       posID,
		BotID:            bot.ID,
		Symbol:           bot.Symbol,
		Side:             side,
		Purpose:          o.Purpose,
		Status:           o.Status,
		Quantity:         o.Quantity,
		Price:            o.Price,
		ExecutedQuantity: o.ExecutedQuantity,
		ExecutedPrice:    o.ExecutedPrice,
		ClientOID:        o.ClientOID,
		ExternalOrderID:  o.ExternalOrderID,
		CreatedAtMs:      generatedAtMs,
	}
}

func positionID(botID string, side ledger.Side, prior *ledger.PositionRecord, generatedAtMs int64) string {
	if prior != nil && prior.ID != "" {
		return prior.ID
	}
	return fmt.Sprintf("%s-%s-%d", botID, side, generatedAtMs)
}

func orderID(posID string, o *strategy.SubmittedOrder, generatedAtMs int64) string {
	if o.ClientOID != "" {
		return o.ClientOID
	}
	if o.ExternalOrderID != "" {
		return o.ExternalOrderID
	}
	return fmt.Sprintf("%s-%s-%d", posID, o.Purpose, generatedAtMs)
}

func normalizeSide(raw string, fallback ledger.Side) ledger.Side {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return ledger.SideLong
	case "short", "sell":
		return ledger.SideShort
	}
	if fallback != "" {
		return fallback
	}
	return ledger.SideLong
}

func clonePosition(p *ledger.PositionRecord) *ledger.PositionRecord {
	if p == nil {
		return nil
	}
	dup := *p
	if p.StrategyContext != nil {
		dup.StrategyContext = make(map[string]any, len(p.StrategyContext))
		for k, v := range p.StrategyContext {
			dup.StrategyContext[k] = v
		}
	}
	return &dup
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func priorQuantity(p *ledger.PositionRecord) float64 {
	if p == nil {
		return 0
	}
	return p.Quantity
}

func priorPrice(p *ledger.PositionRecord) float64 {
	if p == nil {
		return 0
	}
	return p.AvgEntryPrice
}
