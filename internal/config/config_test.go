package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/strategy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
bots:
  - id: eth-15m
    symbol: ETHUSDT
    timeframe: 15m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "https://fapi.binance.com", cfg.Exchange.RESTBaseURL)
	assert.Equal(t, 15*time.Second, cfg.Exchange.HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.Dispatch.TickInterval)
	assert.Equal(t, int64(2000), cfg.Dispatch.EpsilonMs)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, "127.0.0.1:8087", cfg.Ops.Listen)
	assert.Equal(t, "tidemark", cfg.Redis.Prefix)

	require.Len(t, cfg.Bots, 1)
	assert.Equal(t, "binance", cfg.Bots[0].ExchangeID)
	assert.Equal(t, 200, cfg.Bots[0].LookbackBars)
}

func TestLoadFullBot(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
store:
  driver: sqlite
  path: /tmp/t.db
dispatch:
  tick_interval: 30s
  epsilon_ms: 1500
bots:
  - id: eth-trend
    symbol: ETHUSDT
    timeframe: 15m
    lookback_bars: 120
    dry_run: true
    ranges:
      - role: primary-range
        timeframe: 1h
    indicators:
      - role: execution
        indicator_id: ema
        timeframe: 15m
        params:
          period: 21
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.TickInterval)
	assert.Equal(t, int64(1500), cfg.Dispatch.EpsilonMs)

	bots := cfg.StrategyBots()
	require.Len(t, bots, 1)
	b := bots[0]
	assert.Equal(t, "eth-trend", b.ID)
	assert.True(t, b.DryRun)
	assert.Equal(t, 120, b.LookbackBars)
	require.Len(t, b.Ranges, 1)
	assert.Equal(t, strategy.RolePrimaryRange, b.Ranges[0].Role)
	require.Len(t, b.Indicators, 1)
	assert.Equal(t, "ema", b.Indicators[0].IndicatorID)
	assert.Equal(t, map[string]any{"period": 21}, b.Indicators[0].Params)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := map[string]string{
		"no bots": `
store:
  driver: memory
`,
		"bad driver": `
store:
  driver: postgres
bots:
  - {id: a, symbol: ETHUSDT, timeframe: 15m}
`,
		"duplicate bot id": `
store: {driver: memory}
bots:
  - {id: a, symbol: ETHUSDT, timeframe: 15m}
  - {id: a, symbol: BTCUSDT, timeframe: 1h}
`,
		"invalid timeframe": `
store: {driver: memory}
bots:
  - {id: a, symbol: ETHUSDT, timeframe: 7m}
`,
		"missing symbol": `
store: {driver: memory}
bots:
  - {id: a, timeframe: 15m}
`,
		"bad indicator params": `
store: {driver: memory}
bots:
  - id: a
    symbol: ETHUSDT
    timeframe: 15m
    indicators:
      - {role: execution, indicator_id: ema, params: {period: 1}}
`,
		"bad range role": `
store: {driver: memory}
bots:
  - id: a
    symbol: ETHUSDT
    timeframe: 15m
    ranges:
      - {role: weekly, timeframe: 1h}
`,
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
