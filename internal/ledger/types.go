package ledger

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

type PositionStatus string

const (
	PositionFlat         PositionStatus = "flat"
	PositionEntryPending PositionStatus = "entry-pending"
	PositionOpen         PositionStatus = "open"
	PositionReducing     PositionStatus = "reducing"
	PositionClosing      PositionStatus = "closing"
	PositionClosed       PositionStatus = "closed"
	PositionReconciling  PositionStatus = "reconciling"
	PositionError        PositionStatus = "error"
)

// PositionRecord is the bot's local view of one position. Owned by the
// execution/reconciliation pipeline; strategy evaluation only reads it.
type PositionRecord struct {
	ID                        string         `json:"id"`
	BotID                     string         `json:"bot_id"`
	Symbol                    string         `json:"symbol"`
	Side                      Side           `json:"side"`
	Status                    PositionStatus `json:"status"`
	Quantity                  float64        `json:"quantity"`
	RemainingQuantity         float64        `json:"remaining_quantity"`
	AvgEntryPrice             float64        `json:"avg_entry_price,omitempty"`
	StopPrice                 float64        `json:"stop_price,omitempty"`
	RealizedPnl               float64        `json:"realized_pnl"`
	UnrealizedPnl             float64        `json:"unrealized_pnl,omitempty"`
	OpenedAtMs                int64          `json:"opened_at_ms,omitempty"`
	ClosedAtMs                int64          `json:"closed_at_ms,omitempty"`
	LastStrategyDecisionTimeMs int64         `json:"last_strategy_decision_time_ms,omitempty"`
	LastExchangeSyncTimeMs    int64          `json:"last_exchange_sync_time_ms,omitempty"`
	StrategyContext           map[string]any `json:"strategy_context,omitempty"`
}

// Active reports whether the position still represents exchange exposure or
// an in-flight order.
func (p *PositionRecord) Active() bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case PositionEntryPending, PositionOpen, PositionReducing, PositionClosing, PositionReconciling:
		return true
	default:
		return false
	}
}

type OrderPurpose string

const (
	OrderPurposeEntry  OrderPurpose = "entry"
	OrderPurposeReduce OrderPurpose = "reduce"
	OrderPurposeClose  OrderPurpose = "close"
)

type OrderStatus string

const (
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderRejected  OrderStatus = "rejected"
)

// OrderRecord is an append-mostly record of one exchange order submission,
// always attributed to a PositionRecord.
type OrderRecord struct {
	ID              string       `json:"id"`
	PositionID      string       `json:"position_id"`
	BotID           string       `json:"bot_id"`
	Symbol          string       `json:"symbol"`
	Side            Side         `json:"side"`
	Purpose         OrderPurpose `json:"purpose"`
	Status          OrderStatus  `json:"status"`
	Quantity        float64      `json:"quantity"`
	Price           float64      `json:"price,omitempty"`
	ExecutedQuantity float64     `json:"executed_quantity,omitempty"`
	ExecutedPrice   float64      `json:"executed_price,omitempty"`
	ClientOID       string       `json:"client_oid,omitempty"`
	ExternalOrderID string       `json:"external_order_id,omitempty"`
	CreatedAtMs     int64        `json:"created_at_ms"`
}

// FillRecord is a confirmed fill attributed to a position.
type FillRecord struct {
	ID         string  `json:"id"`
	PositionID string  `json:"position_id"`
	OrderID    string  `json:"order_id,omitempty"`
	BotID      string  `json:"bot_id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Source     string  `json:"source"`
	Reason     string  `json:"reason"`
	FilledAtMs int64   `json:"filled_at_ms"`
}

type EventStatus string

const (
	EventOK    EventStatus = "ok"
	EventDrift EventStatus = "drift"
	EventError EventStatus = "error"
)

// ReconciliationEventRecord is an append-only audit entry.
type ReconciliationEventRecord struct {
	ID         string      `json:"id"`
	BotID      string      `json:"bot_id"`
	PositionID string      `json:"position_id,omitempty"`
	Symbol     string      `json:"symbol"`
	Status     EventStatus `json:"status"`
	Message    string      `json:"message"`
	CreatedAtMs int64      `json:"created_at_ms"`
}
