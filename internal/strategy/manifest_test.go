package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticManifestExecutionOnly(t *testing.T) {
	m := NewStaticManifest()
	out, err := m.RequiredFeeds(Bot{ID: "b", Symbol: "ETHUSDT", Timeframe: "15m"})
	require.NoError(t, err)

	require.Len(t, out.Candles, 1)
	assert.Equal(t, RoleExecution, out.Candles[0].Role)
	assert.Equal(t, "15m", out.Candles[0].Timeframe)
	assert.Equal(t, 100, out.Candles[0].LookbackBars, "default lookback")
	assert.Empty(t, out.Indicators)
}

func TestStaticManifestInheritsDefaults(t *testing.T) {
	m := NewStaticManifest()
	bot := Bot{
		ID: "b", Symbol: "ETHUSDT", Timeframe: "15m", LookbackBars: 250,
		Ranges: []CandleRequirement{
			{Role: RolePrimaryRange, Timeframe: "1h"},
			{Role: RoleSecondaryRange, Timeframe: ""},
		},
		Indicators: []IndicatorRequirement{
			{Role: RoleExecution, IndicatorID: "ema"},
		},
	}
	out, err := m.RequiredFeeds(bot)
	require.NoError(t, err)

	// The empty-timeframe range is dropped, the 1h one inherits lookback.
	require.Len(t, out.Candles, 2)
	assert.Equal(t, "1h", out.Candles[1].Timeframe)
	assert.Equal(t, 250, out.Candles[1].LookbackBars)

	require.Len(t, out.Indicators, 1)
	assert.Equal(t, "15m", out.Indicators[0].Timeframe, "indicator inherits execution timeframe")
	assert.Equal(t, "close", out.Indicators[0].Source)
	assert.Equal(t, 250, out.Indicators[0].LookbackBars)
}

func TestStaticManifestRequiresTimeframe(t *testing.T) {
	m := NewStaticManifest()
	_, err := m.RequiredFeeds(Bot{ID: "b", Symbol: "ETHUSDT"})
	assert.Error(t, err)
}
