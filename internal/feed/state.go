package feed

import "strings"

type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusStale      Status = "stale"
	StatusRefreshing Status = "refreshing"
	StatusError      Status = "error"
)

// MarketKey identifies one shared market candle feed.
type MarketKey struct {
	ExchangeID string `json:"exchange_id"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
}

func (k MarketKey) String() string {
	return k.ExchangeID + "|" + k.Symbol + "|" + k.Timeframe
}

// IndicatorKey identifies one derived indicator feed. ParamsHash is part of
// the key so the same indicator with different parameters is a different feed.
type IndicatorKey struct {
	ExchangeID  string `json:"exchange_id"`
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	IndicatorID string `json:"indicator_id"`
	ParamsHash  string `json:"params_hash"`
}

func (k IndicatorKey) String() string {
	return strings.Join([]string{k.ExchangeID, k.Symbol, k.Timeframe, k.IndicatorID, k.ParamsHash}, "|")
}

func (k IndicatorKey) Market() MarketKey {
	return MarketKey{ExchangeID: k.ExchangeID, Symbol: k.Symbol, Timeframe: k.Timeframe}
}

// MarketFeedState tracks freshness of one shared market candle feed.
// Created on the first refresh request; never deleted, only superseded.
type MarketFeedState struct {
	ExchangeID           string `json:"exchange_id"`
	Symbol               string `json:"symbol"`
	Timeframe            string `json:"timeframe"`
	RequiredByCount      int    `json:"required_by_count"`
	MaxLookbackBars      int    `json:"max_lookback_bars"`
	LastClosedCandleTime int64  `json:"last_closed_candle_time"`
	LastRefreshedAt      int64  `json:"last_refreshed_at"`
	NextDueAt            int64  `json:"next_due_at"`
	Status               Status `json:"status"`
	StorageKey           string `json:"storage_key"`
	CandleCount          int    `json:"candle_count"`
	ErrorMessage         string `json:"error_message,omitempty"`
}

func (s *MarketFeedState) Key() MarketKey {
	return MarketKey{ExchangeID: s.ExchangeID, Symbol: s.Symbol, Timeframe: s.Timeframe}
}

// IndicatorFeedState tracks freshness of one derived indicator feed. It
// depends on exactly one MarketFeedState for the same timeframe.
type IndicatorFeedState struct {
	ExchangeID             string         `json:"exchange_id"`
	Symbol                 string         `json:"symbol"`
	Timeframe              string         `json:"timeframe"`
	IndicatorID            string         `json:"indicator_id"`
	Source                 string         `json:"source"`
	Params                 map[string]any `json:"params"`
	ParamsHash             string         `json:"params_hash"`
	RequiredByCount        int            `json:"required_by_count"`
	MaxLookbackBars        int            `json:"max_lookback_bars"`
	LastClosedCandleTime   int64          `json:"last_closed_candle_time"`
	LastComputedCandleTime int64          `json:"last_computed_candle_time"`
	LastRefreshedAt        int64          `json:"last_refreshed_at"`
	NextDueAt              int64          `json:"next_due_at"`
	Status                 Status         `json:"status"`
	StorageKey             string         `json:"storage_key"`
	CandleCount            int            `json:"candle_count"`
	ErrorMessage           string         `json:"error_message,omitempty"`
}

func (s *IndicatorFeedState) Key() IndicatorKey {
	return IndicatorKey{
		ExchangeID:  s.ExchangeID,
		Symbol:      s.Symbol,
		Timeframe:   s.Timeframe,
		IndicatorID: s.IndicatorID,
		ParamsHash:  s.ParamsHash,
	}
}

// MarketRefreshRequest asks a market worker to refetch one candle feed.
type MarketRefreshRequest struct {
	ExchangeID   string `json:"exchange_id"`
	Symbol       string `json:"symbol"`
	Timeframe    string `json:"timeframe"`
	LookbackBars int    `json:"lookback_bars"`
	RequiredAt   int64  `json:"required_at"`
	Reason       string `json:"reason"`
}

func (r MarketRefreshRequest) Key() MarketKey {
	return MarketKey{ExchangeID: r.ExchangeID, Symbol: r.Symbol, Timeframe: r.Timeframe}
}

// IndicatorRefreshRequest asks an indicator worker to recompute one feed.
type IndicatorRefreshRequest struct {
	Key        IndicatorKey `json:"key"`
	RequiredAt int64        `json:"required_at"`
	Reason     string       `json:"reason"`
}
