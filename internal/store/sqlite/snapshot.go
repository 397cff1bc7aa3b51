package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tidemark/internal/feed"
	"tidemark/internal/indicator"
	"tidemark/internal/market"
	"tidemark/internal/store/model"
)

// Snapshot blobs are stored as JSON text so loads go through the same strict
// decode path as every other backend.

func (s *Store) SaveCandles(ctx context.Context, storageKey string, candles []market.Candle) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("marshal candle blob: %w", err)
	}
	return s.saveBlob(ctx, storageKey, raw)
}

func (s *Store) LoadCandles(ctx context.Context, storageKey string) ([]market.Candle, error) {
	raw, err := s.loadBlob(ctx, storageKey)
	if err != nil {
		return nil, fmt.Errorf("candle blob %q: %w", storageKey, err)
	}
	return feed.DecodeCandles(raw)
}

func (s *Store) SaveSeries(ctx context.Context, storageKey string, snap indicator.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal indicator blob: %w", err)
	}
	return s.saveBlob(ctx, storageKey, raw)
}

func (s *Store) LoadSeries(ctx context.Context, storageKey string) (indicator.Snapshot, error) {
	raw, err := s.loadBlob(ctx, storageKey)
	if err != nil {
		return indicator.Snapshot{}, fmt.Errorf("indicator blob %q: %w", storageKey, err)
	}
	return feed.DecodeSeries(raw)
}

func (s *Store) saveBlob(ctx context.Context, storageKey string, raw []byte) error {
	m := model.SnapshotBlobModel{
		StorageKey:  storageKey,
		Payload:     datatypes.JSON(raw),
		CreatedAtMs: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "storage_key"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) loadBlob(ctx context.Context, storageKey string) ([]byte, error) {
	var m model.SnapshotBlobModel
	err := s.db.WithContext(ctx).Where("storage_key = ?", storageKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, feed.ErrSnapshotMissing
	}
	if err != nil {
		return nil, err
	}
	return []byte(m.Payload), nil
}
