package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/market"
)

func flatCandles(n int, price float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      price, High: price + 1, Low: price - 1, Close: price,
			Volume: 100,
		}
	}
	return out
}

func TestValidateParams(t *testing.T) {
	assert.NoError(t, ValidateParams(IDEMA, nil))
	assert.NoError(t, ValidateParams(IDEMA, map[string]any{"period": 21}))
	assert.NoError(t, ValidateParams(IDRSI, map[string]any{"period": float64(14)}))
	assert.NoError(t, ValidateParams(IDWaveTrend, map[string]any{"channel_length": 10, "average_length": 21}))

	assert.Error(t, ValidateParams(IDEMA, map[string]any{"period": 1}), "below minimum")
	assert.Error(t, ValidateParams(IDEMA, map[string]any{"period": 501}), "above maximum")
	assert.Error(t, ValidateParams(IDEMA, map[string]any{"period": "21"}), "wrong type")
	assert.Error(t, ValidateParams(IDEMA, map[string]any{"window": 21}), "unknown key")
	assert.Error(t, ValidateParams("vwap", map[string]any{"period": 21}), "unknown id")
}

func TestComputeEMA(t *testing.T) {
	e := NewEngine()
	candles := flatCandles(60, 100)

	snap, err := e.Compute(IDEMA, candles, map[string]any{"period": 21})
	require.NoError(t, err)

	assert.Equal(t, IDEMA, snap.IndicatorID)
	require.Len(t, snap.Series["ema"], len(candles))
	assert.InDelta(t, 100, snap.Latest["ema"], 1e-9, "ema of a flat series converges to the price")
	assert.Zero(t, snap.Series["ema"][0], "warm-up region is zeroed")
}

func TestComputeWaveTrendShape(t *testing.T) {
	e := NewEngine()
	candles := flatCandles(80, 100)

	snap, err := e.Compute(IDWaveTrend, candles, nil)
	require.NoError(t, err)

	require.Len(t, snap.Series["wt1"], len(candles))
	require.Len(t, snap.Series["wt2"], len(candles))
	_, ok := snap.Latest["wt1"]
	assert.True(t, ok)
	_, ok = snap.Latest["wt2"]
	assert.True(t, ok)
}

func TestComputeRejectsBadInput(t *testing.T) {
	e := NewEngine()

	_, err := e.Compute("vwap", flatCandles(10, 100), nil)
	assert.Error(t, err)

	_, err = e.Compute(IDEMA, nil, nil)
	assert.Error(t, err)

	_, err = e.Compute(IDEMA, flatCandles(10, 100), map[string]any{"period": 0})
	assert.Error(t, err)
}

func TestIntParamFallbacks(t *testing.T) {
	assert.Equal(t, 21, intParam(nil, "period", 21))
	assert.Equal(t, 14, intParam(map[string]any{"period": 14}, "period", 21))
	assert.Equal(t, 14, intParam(map[string]any{"period": float64(14)}, "period", 21))
	assert.Equal(t, 21, intParam(map[string]any{"period": -3}, "period", 21))
}
