package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"tidemark/internal/market"
)

// Well-known indicator ids.
const (
	IDEMA       = "ema"
	IDRSI       = "rsi"
	IDATR       = "atr"
	IDWaveTrend = "wavetrend"
	IDMoneyFlow = "moneyflow"
)

// Snapshot is the materialized output of one indicator feed computation.
type Snapshot struct {
	IndicatorID string               `json:"indicator_id"`
	Latest      map[string]float64   `json:"latest"`
	Series      map[string][]float64 `json:"series"`
}

// Engine computes indicator series from closed candles.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Compute validates params against the indicator's schema and runs the
// computation. Candles must be ascending and fully closed.
func (e *Engine) Compute(id string, candles []market.Candle, params map[string]any) (Snapshot, error) {
	if err := ValidateParams(id, params); err != nil {
		return Snapshot{}, err
	}
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("indicator %s: no candles", id)
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	snap := Snapshot{
		IndicatorID: id,
		Latest:      make(map[string]float64),
		Series:      make(map[string][]float64),
	}
	switch id {
	case IDEMA:
		period := intParam(params, "period", 21)
		series := sanitizeSeries(talib.Ema(closes, period))
		snap.Series["ema"] = series
		snap.Latest["ema"] = lastValid(series)
	case IDRSI:
		period := intParam(params, "period", 14)
		series := sanitizeSeries(talib.Rsi(closes, period))
		snap.Series["rsi"] = series
		snap.Latest["rsi"] = lastValid(series)
	case IDATR:
		period := intParam(params, "period", 14)
		series := sanitizeSeries(talib.Atr(highs, lows, closes, period))
		snap.Series["atr"] = series
		snap.Latest["atr"] = lastValid(series)
	case IDWaveTrend:
		n1 := intParam(params, "channel_length", 10)
		n2 := intParam(params, "average_length", 21)
		wt1, wt2 := waveTrend(highs, lows, closes, n1, n2)
		snap.Series["wt1"] = wt1
		snap.Series["wt2"] = wt2
		snap.Latest["wt1"] = lastValid(wt1)
		snap.Latest["wt2"] = lastValid(wt2)
	case IDMoneyFlow:
		period := intParam(params, "period", 14)
		series := sanitizeSeries(talib.Mfi(highs, lows, closes, volumes, period))
		snap.Series["mfi"] = series
		snap.Latest["mfi"] = lastValid(series)
	default:
		return Snapshot{}, fmt.Errorf("unknown indicator id %q", id)
	}
	return snap, nil
}

// waveTrend is the LazyBear WaveTrend oscillator built from talib EMA/SMA
// primitives: esa=ema(hlc3,n1), d=ema(|hlc3-esa|,n1), ci=(hlc3-esa)/(0.015*d).
func waveTrend(highs, lows, closes []float64, n1, n2 int) (wt1, wt2 []float64) {
	n := len(closes)
	ap := make([]float64, n)
	for i := 0; i < n; i++ {
		ap[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	esa := talib.Ema(ap, n1)
	dev := make([]float64, n)
	for i := 0; i < n; i++ {
		dev[i] = math.Abs(ap[i] - esa[i])
	}
	d := talib.Ema(dev, n1)
	ci := make([]float64, n)
	for i := 0; i < n; i++ {
		if d[i] == 0 {
			ci[i] = 0
			continue
		}
		ci[i] = (ap[i] - esa[i]) / (0.015 * d[i])
	}
	wt1 = sanitizeSeries(talib.Ema(ci, n2))
	wt2 = sanitizeSeries(talib.Sma(wt1, 4))
	return wt1, wt2
}

func intParam(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n
		}
	case int64:
		if n > 0 {
			return int(n)
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	}
	return fallback
}

func sanitizeSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
			continue
		}
		out[i] = v
	}
	return out
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != 0 {
			return series[i]
		}
	}
	return 0
}
