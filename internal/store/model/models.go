package model

import "gorm.io/datatypes"

type MarketFeedStateModel struct {
	Key                  string `gorm:"column:key;primaryKey"`
	ExchangeID           string `gorm:"column:exchange_id;index:idx_market_feed,priority:1"`
	Symbol               string `gorm:"column:symbol;index:idx_market_feed,priority:2"`
	Timeframe            string `gorm:"column:timeframe;index:idx_market_feed,priority:3"`
	RequiredByCount      int    `gorm:"column:required_by_count"`
	MaxLookbackBars      int    `gorm:"column:max_lookback_bars"`
	LastClosedCandleTime int64  `gorm:"column:last_closed_candle_time"`
	LastRefreshedAt      int64  `gorm:"column:last_refreshed_at"`
	NextDueAt            int64  `gorm:"column:next_due_at"`
	Status               string `gorm:"column:status"`
	StorageKey           string `gorm:"column:storage_key"`
	CandleCount          int    `gorm:"column:candle_count"`
	ErrorMessage         string `gorm:"column:error_message"`
	UpdatedAtMs          int64  `gorm:"column:updated_at_ms"`
}

func (MarketFeedStateModel) TableName() string { return "market_feed_states" }

type IndicatorFeedStateModel struct {
	Key                    string         `gorm:"column:key;primaryKey"`
	ExchangeID             string         `gorm:"column:exchange_id;index:idx_indicator_feed,priority:1"`
	Symbol                 string         `gorm:"column:symbol;index:idx_indicator_feed,priority:2"`
	Timeframe              string         `gorm:"column:timeframe;index:idx_indicator_feed,priority:3"`
	IndicatorID            string         `gorm:"column:indicator_id"`
	Source                 string         `gorm:"column:source"`
	ParamsJSON             datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	ParamsHash             string         `gorm:"column:params_hash"`
	RequiredByCount        int            `gorm:"column:required_by_count"`
	MaxLookbackBars        int            `gorm:"column:max_lookback_bars"`
	LastClosedCandleTime   int64          `gorm:"column:last_closed_candle_time"`
	LastComputedCandleTime int64          `gorm:"column:last_computed_candle_time"`
	LastRefreshedAt        int64          `gorm:"column:last_refreshed_at"`
	NextDueAt              int64          `gorm:"column:next_due_at"`
	Status                 string         `gorm:"column:status"`
	StorageKey             string         `gorm:"column:storage_key"`
	CandleCount            int            `gorm:"column:candle_count"`
	ErrorMessage           string         `gorm:"column:error_message"`
	UpdatedAtMs            int64          `gorm:"column:updated_at_ms"`
}

func (IndicatorFeedStateModel) TableName() string { return "indicator_feed_states" }

type CursorModel struct {
	BotID                      string `gorm:"column:bot_id;primaryKey"`
	Timeframe                  string `gorm:"column:timeframe;primaryKey"`
	LastProcessedCandleCloseMs int64  `gorm:"column:last_processed_candle_close_ms"`
	UpdatedAtMs                int64  `gorm:"column:updated_at_ms"`
}

func (CursorModel) TableName() string { return "bot_execution_cursors" }

type PositionModel struct {
	ID                         string         `gorm:"column:id;primaryKey"`
	BotID                      string         `gorm:"column:bot_id;index"`
	Symbol                     string         `gorm:"column:symbol"`
	Side                       string         `gorm:"column:side"`
	Status                     string         `gorm:"column:status;index"`
	Quantity                   float64        `gorm:"column:quantity"`
	RemainingQuantity          float64        `gorm:"column:remaining_quantity"`
	AvgEntryPrice              float64        `gorm:"column:avg_entry_price"`
	StopPrice                  float64        `gorm:"column:stop_price"`
	RealizedPnl                float64        `gorm:"column:realized_pnl"`
	UnrealizedPnl              float64        `gorm:"column:unrealized_pnl"`
	OpenedAtMs                 int64          `gorm:"column:opened_at_ms"`
	ClosedAtMs                 int64          `gorm:"column:closed_at_ms"`
	LastStrategyDecisionTimeMs int64          `gorm:"column:last_strategy_decision_time_ms"`
	LastExchangeSyncTimeMs     int64          `gorm:"column:last_exchange_sync_time_ms"`
	StrategyContextJSON        datatypes.JSON `gorm:"column:strategy_context_json;type:TEXT"`
	UpdatedAtMs                int64          `gorm:"column:updated_at_ms"`
}

func (PositionModel) TableName() string { return "positions" }

type OrderModel struct {
	ID               string  `gorm:"column:id;primaryKey"`
	PositionID       string  `gorm:"column:position_id;index"`
	BotID            string  `gorm:"column:bot_id;index"`
	Symbol           string  `gorm:"column:symbol"`
	Side             string  `gorm:"column:side"`
	Purpose          string  `gorm:"column:purpose"`
	Status           string  `gorm:"column:status"`
	Quantity         float64 `gorm:"column:quantity"`
	Price            float64 `gorm:"column:price"`
	ExecutedQuantity float64 `gorm:"column:executed_quantity"`
	ExecutedPrice    float64 `gorm:"column:executed_price"`
	ClientOID        string  `gorm:"column:client_oid"`
	ExternalOrderID  string  `gorm:"column:external_order_id"`
	CreatedAtMs      int64   `gorm:"column:created_at_ms"`
}

func (OrderModel) TableName() string { return "orders" }

type FillModel struct {
	ID         string  `gorm:"column:id;primaryKey"`
	PositionID string  `gorm:"column:position_id;index"`
	OrderID    string  `gorm:"column:order_id"`
	BotID      string  `gorm:"column:bot_id"`
	Symbol     string  `gorm:"column:symbol"`
	Side       string  `gorm:"column:side"`
	Quantity   float64 `gorm:"column:quantity"`
	Price      float64 `gorm:"column:price"`
	Source     string  `gorm:"column:source"`
	Reason     string  `gorm:"column:reason"`
	FilledAtMs int64   `gorm:"column:filled_at_ms"`
}

func (FillModel) TableName() string { return "fills" }

type ReconciliationEventModel struct {
	ID          string `gorm:"column:id;primaryKey"`
	BotID       string `gorm:"column:bot_id;index"`
	PositionID  string `gorm:"column:position_id"`
	Symbol      string `gorm:"column:symbol"`
	Status      string `gorm:"column:status"`
	Message     string `gorm:"column:message"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;index"`
}

func (ReconciliationEventModel) TableName() string { return "reconciliation_events" }

type SnapshotBlobModel struct {
	StorageKey  string         `gorm:"column:storage_key;primaryKey"`
	Payload     datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAtMs int64          `gorm:"column:created_at_ms"`
}

func (SnapshotBlobModel) TableName() string { return "snapshot_blobs" }
