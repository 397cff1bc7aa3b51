package strategy

import (
	"context"

	"tidemark/internal/indicator"
	"tidemark/internal/ledger"
	"tidemark/internal/market"
)

type ProcessingStatus string

const (
	StatusNoSignal        ProcessingStatus = "no-signal"
	StatusDryRun          ProcessingStatus = "dry-run"
	StatusSkippedExisting ProcessingStatus = "skipped-existing-position"
	StatusOrderSubmitted  ProcessingStatus = "order-submitted"
	StatusSyncedPosition  ProcessingStatus = "synced-position"
)

// SubmittedOrder describes the order the signal processor sent (or tried to
// send) to the exchange.
type SubmittedOrder struct {
	Purpose          ledger.OrderPurpose `json:"purpose"`
	Status           ledger.OrderStatus  `json:"status"`
	Side             ledger.Side         `json:"side"`
	Quantity         float64             `json:"quantity"`
	Price            float64             `json:"price,omitempty"`
	StopPrice        float64             `json:"stop_price,omitempty"`
	ExecutedQuantity float64             `json:"executed_quantity,omitempty"`
	ExecutedPrice    float64             `json:"executed_price,omitempty"`
	ClientOID        string              `json:"client_oid,omitempty"`
	ExternalOrderID  string              `json:"external_order_id,omitempty"`
}

// ReconciliationHint is the processor's own judgement of ledger/exchange
// agreement, carried back so the derivation can mark the position.
type ReconciliationHint struct {
	Status  ledger.EventStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// ProcessingResult is what the signal-processing collaborator returns for one
// closed candle.
type ProcessingResult struct {
	Status         ProcessingStatus                 `json:"status"`
	Side           ledger.Side                      `json:"side,omitempty"`
	Order          *SubmittedOrder                  `json:"order,omitempty"`
	Snapshot       *market.ExchangePositionSnapshot `json:"snapshot,omitempty"`
	Reconciliation *ReconciliationHint              `json:"reconciliation,omitempty"`
}

// Event is the input handed to the processor: the bot, the closed candle
// boundary, every required candle series and indicator snapshot keyed by
// role, and the prior position.
type Event struct {
	Bot              Bot
	ClosedCandleTime int64
	Candles          map[string][]market.Candle
	Indicators       map[string]indicator.Snapshot
	Position         *ledger.PositionRecord
}

// Processor evaluates strategy decisions and talks to the exchange. The
// coordination layer only consumes its result; exchange-side idempotency
// (client-order-id deduplication) lives behind this interface.
type Processor interface {
	Process(ctx context.Context, event Event) (ProcessingResult, error)
}

// DryRunProcessor never trades; it reports dry-run for every event. Default
// wiring until a real strategy is plugged in.
type DryRunProcessor struct{}

func NewDryRunProcessor() *DryRunProcessor { return &DryRunProcessor{} }

func (p *DryRunProcessor) Process(ctx context.Context, event Event) (ProcessingResult, error) {
	return ProcessingResult{Status: StatusDryRun}, nil
}
