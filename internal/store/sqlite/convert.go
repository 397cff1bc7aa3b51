package sqlite

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"tidemark/internal/feed"
	"tidemark/internal/ledger"
	"tidemark/internal/store/model"
)

func marketStateToModel(st feed.MarketFeedState) model.MarketFeedStateModel {
	return model.MarketFeedStateModel{
		Key:                  st.Key().String(),
		ExchangeID:           st.ExchangeID,
		Symbol:               st.Symbol,
		Timeframe:            st.Timeframe,
		RequiredByCount:      st.RequiredByCount,
		MaxLookbackBars:      st.MaxLookbackBars,
		LastClosedCandleTime: st.LastClosedCandleTime,
		LastRefreshedAt:      st.LastRefreshedAt,
		NextDueAt:            st.NextDueAt,
		Status:               string(st.Status),
		StorageKey:           st.StorageKey,
		CandleCount:          st.CandleCount,
		ErrorMessage:         st.ErrorMessage,
		UpdatedAtMs:          st.LastRefreshedAt,
	}
}

func marketStateFromModel(m model.MarketFeedStateModel) feed.MarketFeedState {
	return feed.MarketFeedState{
		ExchangeID:           m.ExchangeID,
		Symbol:               m.Symbol,
		Timeframe:            m.Timeframe,
		RequiredByCount:      m.RequiredByCount,
		MaxLookbackBars:      m.MaxLookbackBars,
		LastClosedCandleTime: m.LastClosedCandleTime,
		LastRefreshedAt:      m.LastRefreshedAt,
		NextDueAt:            m.NextDueAt,
		Status:               feed.Status(m.Status),
		StorageKey:           m.StorageKey,
		CandleCount:          m.CandleCount,
		ErrorMessage:         m.ErrorMessage,
	}
}

func indicatorStateToModel(st feed.IndicatorFeedState) (model.IndicatorFeedStateModel, error) {
	var params datatypes.JSON
	if st.Params != nil {
		raw, err := json.Marshal(st.Params)
		if err != nil {
			return model.IndicatorFeedStateModel{}, fmt.Errorf("marshal indicator params: %w", err)
		}
		params = datatypes.JSON(raw)
	}
	return model.IndicatorFeedStateModel{
		Key:                    st.Key().String(),
		ExchangeID:             st.ExchangeID,
		Symbol:                 st.Symbol,
		Timeframe:              st.Timeframe,
		IndicatorID:            st.IndicatorID,
		Source:                 st.Source,
		ParamsJSON:             params,
		ParamsHash:             st.ParamsHash,
		RequiredByCount:        st.RequiredByCount,
		MaxLookbackBars:        st.MaxLookbackBars,
		LastClosedCandleTime:   st.LastClosedCandleTime,
		LastComputedCandleTime: st.LastComputedCandleTime,
		LastRefreshedAt:        st.LastRefreshedAt,
		NextDueAt:              st.NextDueAt,
		Status:                 string(st.Status),
		StorageKey:             st.StorageKey,
		CandleCount:            st.CandleCount,
		ErrorMessage:           st.ErrorMessage,
	}, nil
}

func indicatorStateFromModel(m model.IndicatorFeedStateModel) (feed.IndicatorFeedState, error) {
	var params map[string]any
	if len(m.ParamsJSON) > 0 {
		if err := json.Unmarshal(m.ParamsJSON, &params); err != nil {
			return feed.IndicatorFeedState{}, fmt.Errorf("unmarshal indicator params for %s: %w", m.Key, err)
		}
	}
	return feed.IndicatorFeedState{
		ExchangeID:             m.ExchangeID,
		Symbol:                 m.Symbol,
		Timeframe:              m.Timeframe,
		IndicatorID:            m.IndicatorID,
		Source:                 m.Source,
		Params:                 params,
		ParamsHash:             m.ParamsHash,
		RequiredByCount:        m.RequiredByCount,
		MaxLookbackBars:        m.MaxLookbackBars,
		LastClosedCandleTime:   m.LastClosedCandleTime,
		LastComputedCandleTime: m.LastComputedCandleTime,
		LastRefreshedAt:        m.LastRefreshedAt,
		NextDueAt:              m.NextDueAt,
		Status:                 feed.Status(m.Status),
		StorageKey:             m.StorageKey,
		CandleCount:            m.CandleCount,
		ErrorMessage:           m.ErrorMessage,
	}, nil
}

func indicatorStatesFromModels(rows []model.IndicatorFeedStateModel) ([]feed.IndicatorFeedState, error) {
	out := make([]feed.IndicatorFeedState, 0, len(rows))
	for _, m := range rows {
		st, err := indicatorStateFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func positionToModel(p ledger.PositionRecord) (model.PositionModel, error) {
	var ctxJSON datatypes.JSON
	if p.StrategyContext != nil {
		raw, err := json.Marshal(p.StrategyContext)
		if err != nil {
			return model.PositionModel{}, fmt.Errorf("marshal strategy context: %w", err)
		}
		ctxJSON = datatypes.JSON(raw)
	}
	return model.PositionModel{
		ID:                         p.ID,
		BotID:                      p.BotID,
		Symbol:                     p.Symbol,
		Side:                       string(p.Side),
		Status:                     string(p.Status),
		Quantity:                   p.Quantity,
		RemainingQuantity:          p.RemainingQuantity,
		AvgEntryPrice:              p.AvgEntryPrice,
		StopPrice:                  p.StopPrice,
		RealizedPnl:                p.RealizedPnl,
		UnrealizedPnl:              p.UnrealizedPnl,
		OpenedAtMs:                 p.OpenedAtMs,
		ClosedAtMs:                 p.ClosedAtMs,
		LastStrategyDecisionTimeMs: p.LastStrategyDecisionTimeMs,
		LastExchangeSyncTimeMs:     p.LastExchangeSyncTimeMs,
		StrategyContextJSON:        ctxJSON,
	}, nil
}

func positionFromModel(m model.PositionModel) (ledger.PositionRecord, error) {
	var sctx map[string]any
	if len(m.StrategyContextJSON) > 0 {
		if err := json.Unmarshal(m.StrategyContextJSON, &sctx); err != nil {
			return ledger.PositionRecord{}, fmt.Errorf("unmarshal strategy context for %s: %w", m.ID, err)
		}
	}
	return ledger.PositionRecord{
		ID:                         m.ID,
		BotID:                      m.BotID,
		Symbol:                     m.Symbol,
		Side:                       ledger.Side(m.Side),
		Status:                     ledger.PositionStatus(m.Status),
		Quantity:                   m.Quantity,
		RemainingQuantity:          m.RemainingQuantity,
		AvgEntryPrice:              m.AvgEntryPrice,
		StopPrice:                  m.StopPrice,
		RealizedPnl:                m.RealizedPnl,
		UnrealizedPnl:              m.UnrealizedPnl,
		OpenedAtMs:                 m.OpenedAtMs,
		ClosedAtMs:                 m.ClosedAtMs,
		LastStrategyDecisionTimeMs: m.LastStrategyDecisionTimeMs,
		LastExchangeSyncTimeMs:     m.LastExchangeSyncTimeMs,
		StrategyContext:            sctx,
	}, nil
}

func orderToModel(o ledger.OrderRecord) model.OrderModel {
	return model.OrderModel{
		ID:               o.ID,
		PositionID:       o.PositionID,
		BotID:            o.BotID,
		Symbol:           o.Symbol,
		Side:             string(o.Side),
		Purpose:          string(o.Purpose),
		Status:           string(o.Status),
		Quantity:         o.Quantity,
		Price:            o.Price,
		ExecutedQuantity: o.ExecutedQuantity,
		ExecutedPrice:    o.ExecutedPrice,
		ClientOID:        o.ClientOID,
		ExternalOrderID:  o.ExternalOrderID,
		CreatedAtMs:      o.CreatedAtMs,
	}
}

func fillToModel(f ledger.FillRecord) model.FillModel {
	return model.FillModel{
		ID:         f.ID,
		PositionID: f.PositionID,
		OrderID:    f.OrderID,
		BotID:      f.BotID,
		Symbol:     f.Symbol,
		Side:       string(f.Side),
		Quantity:   f.Quantity,
		Price:      f.Price,
		Source:     f.Source,
		Reason:     f.Reason,
		FilledAtMs: f.FilledAtMs,
	}
}

func eventToModel(e ledger.ReconciliationEventRecord) model.ReconciliationEventModel {
	return model.ReconciliationEventModel{
		ID:          e.ID,
		BotID:       e.BotID,
		PositionID:  e.PositionID,
		Symbol:      e.Symbol,
		Status:      string(e.Status),
		Message:     e.Message,
		CreatedAtMs: e.CreatedAtMs,
	}
}

func eventFromModel(m model.ReconciliationEventModel) ledger.ReconciliationEventRecord {
	return ledger.ReconciliationEventRecord{
		ID:          m.ID,
		BotID:       m.BotID,
		PositionID:  m.PositionID,
		Symbol:      m.Symbol,
		Status:      ledger.EventStatus(m.Status),
		Message:     m.Message,
		CreatedAtMs: m.CreatedAtMs,
	}
}
