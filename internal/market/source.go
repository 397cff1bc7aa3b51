package market

import "context"

// KlineSource fetches closed candles from an exchange. Candles are returned
// ascending by open time; gap handling is the provider's concern.
type KlineSource interface {
	FetchKlines(ctx context.Context, symbol, timeframe string, limit int, endTimeMs int64) ([]Candle, error)
}

// ExchangePositionSnapshot is the exchange's authoritative view of one open
// position, as reported by a PositionReader.
type ExchangePositionSnapshot struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price,omitempty"`
	IsOpen        bool    `json:"is_open"`
}

// PositionReader reports currently open positions for a symbol.
type PositionReader interface {
	GetOpenPositions(ctx context.Context, symbol string) ([]ExchangePositionSnapshot, error)
}
