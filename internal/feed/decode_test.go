package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCandles(t *testing.T) {
	raw := []byte(`[
		{"open_time":1000,"close_time":1999,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10,"trades":3},
		{"open_time":2000,"close_time":2999,"open":1.5,"high":3,"low":1,"close":2.5,"volume":12,"trades":4}
	]`)
	candles, err := DecodeCandles(raw)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1999), candles[0].CloseTime)
	assert.Equal(t, 2.5, candles[1].Close)
	assert.Equal(t, int64(4), candles[1].Trades)
}

func TestDecodeCandlesRejectsMalformedBlobs(t *testing.T) {
	cases := map[string]string{
		"invalid json":     `[{`,
		"not an array":     `{"open_time":1}`,
		"missing times":    `[{"open":1,"close":2}]`,
		"close before open": `[{"open_time":2000,"close_time":1000}]`,
		"out of order": `[
			{"open_time":2000,"close_time":2999},
			{"open_time":1000,"close_time":1999}
		]`,
	}
	for name, raw := range cases {
		_, err := DecodeCandles([]byte(raw))
		assert.ErrorIs(t, err, ErrDecode, name)
	}
}

func TestDecodeSeries(t *testing.T) {
	raw := []byte(`{"indicator_id":"ema","latest":{"ema":105.2},"series":{"ema":[0,104.8,105.2]}}`)
	snap, err := DecodeSeries(raw)
	require.NoError(t, err)
	assert.Equal(t, "ema", snap.IndicatorID)
	assert.Equal(t, 105.2, snap.Latest["ema"])
	assert.Equal(t, []float64{0, 104.8, 105.2}, snap.Series["ema"])
}

func TestDecodeSeriesRejectsMissingID(t *testing.T) {
	_, err := DecodeSeries([]byte(`{"latest":{"ema":1}}`))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodeSeries([]byte(`not json`))
	assert.ErrorIs(t, err, ErrDecode)
}
