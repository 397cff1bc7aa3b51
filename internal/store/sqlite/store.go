package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tidemark/internal/cursor"
	"tidemark/internal/feed"
	"tidemark/internal/ledger"
	"tidemark/internal/store/model"
)

// Store is the SQLite-backed persistence layer. One database file holds feed
// states, snapshots, cursors and the trade ledger so a single WAL connection
// serializes the conditional updates that back the coordination primitives.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The DSN uses modernc-style _pragma options; route gorm through the
	// pure-Go "sqlite" driver registered by modernc.org/sqlite so the store
	// works with CGO_ENABLED=0.
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	models := []interface{}{
		&model.MarketFeedStateModel{},
		&model.IndicatorFeedStateModel{},
		&model.CursorModel{},
		&model.PositionModel{},
		&model.OrderModel{},
		&model.FillModel{},
		&model.ReconciliationEventModel{},
		&model.SnapshotBlobModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	// A refreshing claim never survives a restart: the claimant is gone and
	// the row would block every future refresh.
	if err := db.Model(&model.MarketFeedStateModel{}).
		Where("status = ?", string(feed.StatusRefreshing)).
		Update("status", string(feed.StatusStale)).Error; err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- feed.StateStore ----

func (s *Store) GetMarket(ctx context.Context, key feed.MarketKey) (*feed.MarketFeedState, error) {
	var m model.MarketFeedStateModel
	err := s.db.WithContext(ctx).Where("key = ?", key.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := marketStateFromModel(m)
	return &st, nil
}

func (s *Store) PutMarket(ctx context.Context, st *feed.MarketFeedState) error {
	if st == nil {
		return nil
	}
	m := marketStateToModel(*st)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) EnsureMarket(ctx context.Context, key feed.MarketKey, lookbackBars int) (*feed.MarketFeedState, error) {
	seed := marketStateToModel(feed.MarketFeedState{
		ExchangeID:      key.ExchangeID,
		Symbol:          key.Symbol,
		Timeframe:       key.Timeframe,
		MaxLookbackBars: lookbackBars,
		Status:          feed.StatusStale,
	})
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}
		return tx.Model(&model.MarketFeedStateModel{}).
			Where("key = ? AND max_lookback_bars < ?", key.String(), lookbackBars).
			Update("max_lookback_bars", lookbackBars).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetMarket(ctx, key)
}

func (s *Store) AddMarketConsumer(ctx context.Context, key feed.MarketKey) error {
	return s.db.WithContext(ctx).Model(&model.MarketFeedStateModel{}).
		Where("key = ?", key.String()).
		Update("required_by_count", gorm.Expr("required_by_count + 1")).Error
}

// MarkMarketRefreshing claims the refresh with a conditional UPDATE so only
// one worker wins even across processes sharing the database file. A claim
// older than feed.RefreshLeaseMs is reclaimable: its holder died mid-fetch.
func (s *Store) MarkMarketRefreshing(ctx context.Context, key feed.MarketKey, nowMs int64) (*feed.MarketFeedState, bool, error) {
	if _, err := s.EnsureMarket(ctx, key, 0); err != nil {
		return nil, false, err
	}
	res := s.db.WithContext(ctx).Model(&model.MarketFeedStateModel{}).
		Where("key = ? AND (status <> ? OR last_refreshed_at < ?)",
			key.String(), string(feed.StatusRefreshing), nowMs-feed.RefreshLeaseMs).
		Updates(map[string]interface{}{
			"status":            string(feed.StatusRefreshing),
			"last_refreshed_at": nowMs,
			"updated_at_ms":     nowMs,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}
	st, err := s.GetMarket(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return st, res.RowsAffected > 0, nil
}

func (s *Store) GetIndicator(ctx context.Context, key feed.IndicatorKey) (*feed.IndicatorFeedState, error) {
	var m model.IndicatorFeedStateModel
	err := s.db.WithContext(ctx).Where("key = ?", key.String()).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err := indicatorStateFromModel(m)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) PutIndicator(ctx context.Context, st *feed.IndicatorFeedState) error {
	if st == nil {
		return nil
	}
	m, err := indicatorStateToModel(*st)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) EnsureIndicator(ctx context.Context, st *feed.IndicatorFeedState) (*feed.IndicatorFeedState, error) {
	if st == nil {
		return nil, nil
	}
	seed := *st
	if seed.Status == "" {
		seed.Status = feed.StatusPending
	}
	m, err := indicatorStateToModel(seed)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&m).Error; err != nil {
			return err
		}
		return tx.Model(&model.IndicatorFeedStateModel{}).
			Where("key = ? AND max_lookback_bars < ?", st.Key().String(), st.MaxLookbackBars).
			Update("max_lookback_bars", st.MaxLookbackBars).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetIndicator(ctx, st.Key())
}

func (s *Store) AddIndicatorConsumer(ctx context.Context, key feed.IndicatorKey) error {
	return s.db.WithContext(ctx).Model(&model.IndicatorFeedStateModel{}).
		Where("key = ?", key.String()).
		Update("required_by_count", gorm.Expr("required_by_count + 1")).Error
}

func (s *Store) ListIndicatorsFor(ctx context.Context, key feed.MarketKey) ([]feed.IndicatorFeedState, error) {
	var rows []model.IndicatorFeedStateModel
	err := s.db.WithContext(ctx).
		Where("exchange_id = ? AND symbol = ? AND timeframe = ?", key.ExchangeID, key.Symbol, key.Timeframe).
		Order("key").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return indicatorStatesFromModels(rows)
}

func (s *Store) ListMarkets(ctx context.Context) ([]feed.MarketFeedState, error) {
	var rows []model.MarketFeedStateModel
	if err := s.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]feed.MarketFeedState, 0, len(rows))
	for _, m := range rows {
		out = append(out, marketStateFromModel(m))
	}
	return out, nil
}

func (s *Store) ListIndicators(ctx context.Context) ([]feed.IndicatorFeedState, error) {
	var rows []model.IndicatorFeedStateModel
	if err := s.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	return indicatorStatesFromModels(rows)
}

// ---- cursor.Store ----

func (s *Store) Get(ctx context.Context, botID, timeframe string) (cursor.Cursor, bool, error) {
	var m model.CursorModel
	err := s.db.WithContext(ctx).Where("bot_id = ? AND timeframe = ?", botID, timeframe).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cursor.Cursor{}, false, nil
	}
	if err != nil {
		return cursor.Cursor{}, false, err
	}
	return cursor.Cursor{
		BotID:                      m.BotID,
		Timeframe:                  m.Timeframe,
		LastProcessedCandleCloseMs: m.LastProcessedCandleCloseMs,
		UpdatedAtMs:                m.UpdatedAtMs,
	}, true, nil
}

// Advance moves the cursor forward only when closeMs is strictly greater than
// the stored watermark. The conditional UPDATE plus a do-nothing INSERT for
// the first candle give a compare-and-swap without an explicit lock.
func (s *Store) Advance(ctx context.Context, botID, timeframe string, closeMs, nowMs int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.CursorModel{}).
		Where("bot_id = ? AND timeframe = ? AND last_processed_candle_close_ms < ?", botID, timeframe, closeMs).
		Updates(map[string]interface{}{
			"last_processed_candle_close_ms": closeMs,
			"updated_at_ms":                  nowMs,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	ins := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot_id"}, {Name: "timeframe"}},
		DoNothing: true,
	}).Create(&model.CursorModel{
		BotID:                      botID,
		Timeframe:                  timeframe,
		LastProcessedCandleCloseMs: closeMs,
		UpdatedAtMs:                nowMs,
	})
	if ins.Error != nil {
		return false, ins.Error
	}
	return ins.RowsAffected > 0, nil
}

func (s *Store) List(ctx context.Context) ([]cursor.Cursor, error) {
	var rows []model.CursorModel
	if err := s.db.WithContext(ctx).Order("bot_id, timeframe").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]cursor.Cursor, 0, len(rows))
	for _, m := range rows {
		out = append(out, cursor.Cursor{
			BotID:                      m.BotID,
			Timeframe:                  m.Timeframe,
			LastProcessedCandleCloseMs: m.LastProcessedCandleCloseMs,
			UpdatedAtMs:                m.UpdatedAtMs,
		})
	}
	return out, nil
}

// ---- ledger.Store ----

func (s *Store) ActivePosition(ctx context.Context, botID, symbol string) (*ledger.PositionRecord, error) {
	var m model.PositionModel
	err := s.db.WithContext(ctx).
		Where("bot_id = ? AND symbol = ? AND status NOT IN ?", botID, symbol,
			[]string{string(ledger.PositionFlat), string(ledger.PositionClosed)}).
		Order("opened_at_ms DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := positionFromModel(m)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SavePosition(ctx context.Context, p *ledger.PositionRecord) error {
	if p == nil || p.ID == "" {
		return nil
	}
	m, err := positionToModel(*p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) ListPositions(ctx context.Context, botID string) ([]ledger.PositionRecord, error) {
	q := s.db.WithContext(ctx).Model(&model.PositionModel{})
	if botID != "" {
		q = q.Where("bot_id = ?", botID)
	}
	var rows []model.PositionModel
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.PositionRecord, 0, len(rows))
	for _, m := range rows {
		p, err := positionFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) SaveOrder(ctx context.Context, o *ledger.OrderRecord) error {
	if o == nil || o.ID == "" {
		return nil
	}
	m := orderToModel(*o)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) SaveFill(ctx context.Context, f *ledger.FillRecord) error {
	if f == nil || f.ID == "" {
		return nil
	}
	m := fillToModel(*f)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&m).Error
}

func (s *Store) AppendEvent(ctx context.Context, e *ledger.ReconciliationEventRecord) error {
	if e == nil || e.ID == "" {
		return nil
	}
	m := eventToModel(*e)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&m).Error
}

func (s *Store) ListEvents(ctx context.Context, botID string, limit int) ([]ledger.ReconciliationEventRecord, error) {
	q := s.db.WithContext(ctx).Model(&model.ReconciliationEventModel{})
	if botID != "" {
		q = q.Where("bot_id = ?", botID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.ReconciliationEventModel
	if err := q.Order("created_at_ms DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.ReconciliationEventRecord, 0, len(rows))
	for _, m := range rows {
		out = append(out, eventFromModel(m))
	}
	return out, nil
}
