package feed

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"tidemark/internal/indicator"
	"tidemark/internal/market"
)

var (
	ErrSnapshotMissing = errors.New("snapshot not found")
	// ErrDecode marks a blob that failed shape validation at the read
	// boundary. Stored shape is never trusted without it.
	ErrDecode = errors.New("snapshot decode failed")
)

// DecodeCandles validates a candle blob field by field before handing it to
// callers. A schemaless backend can hand back anything; a malformed blob is a
// data-integrity failure, not a zero value.
func DecodeCandles(raw []byte) ([]market.Candle, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrDecode)
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: candle blob root must be an array", ErrDecode)
	}
	var out []market.Candle
	var decodeErr error
	parsed.ForEach(func(_, item gjson.Result) bool {
		openTime := item.Get("open_time")
		closeTime := item.Get("close_time")
		if !openTime.Exists() || !closeTime.Exists() {
			decodeErr = fmt.Errorf("%w: candle %d missing open_time/close_time", ErrDecode, len(out))
			return false
		}
		c := market.Candle{
			OpenTime:  openTime.Int(),
			CloseTime: closeTime.Int(),
			Open:      item.Get("open").Float(),
			High:      item.Get("high").Float(),
			Low:       item.Get("low").Float(),
			Close:     item.Get("close").Float(),
			Volume:    item.Get("volume").Float(),
			Trades:    item.Get("trades").Int(),
		}
		if c.CloseTime <= c.OpenTime {
			decodeErr = fmt.Errorf("%w: candle %d close_time %d <= open_time %d", ErrDecode, len(out), c.CloseTime, c.OpenTime)
			return false
		}
		if len(out) > 0 && c.OpenTime <= out[len(out)-1].OpenTime {
			decodeErr = fmt.Errorf("%w: candle %d out of order", ErrDecode, len(out))
			return false
		}
		out = append(out, c)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// DecodeSeries validates an indicator snapshot blob.
func DecodeSeries(raw []byte) (indicator.Snapshot, error) {
	if !gjson.ValidBytes(raw) {
		return indicator.Snapshot{}, fmt.Errorf("%w: invalid json", ErrDecode)
	}
	parsed := gjson.ParseBytes(raw)
	id := parsed.Get("indicator_id")
	if !id.Exists() || id.String() == "" {
		return indicator.Snapshot{}, fmt.Errorf("%w: indicator blob missing indicator_id", ErrDecode)
	}
	snap := indicator.Snapshot{
		IndicatorID: id.String(),
		Latest:      make(map[string]float64),
		Series:      make(map[string][]float64),
	}
	parsed.Get("latest").ForEach(func(key, value gjson.Result) bool {
		snap.Latest[key.String()] = value.Float()
		return true
	})
	parsed.Get("series").ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			return true
		}
		vals := value.Array()
		series := make([]float64, 0, len(vals))
		for _, v := range vals {
			series = append(series, v.Float())
		}
		snap.Series[key.String()] = series
		return true
	})
	return snap, nil
}
