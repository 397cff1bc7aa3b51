package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"tidemark/internal/strategy"
)

// Load reads the YAML config at path. Every key can be overridden through the
// environment: dispatch.epsilon_ms becomes TIDEMARK_DISPATCH_EPSILON_MS.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TIDEMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.StringToTimeDurationHookFunc()
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Exchange.RESTBaseURL == "" {
		c.Exchange.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.Exchange.HTTPTimeout <= 0 {
		c.Exchange.HTTPTimeout = 15 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/tidemark.db"
	}
	if c.Store.RunsPath == "" {
		c.Store.RunsPath = "data"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "tidemark"
	}
	if c.Redis.SnapshotTTL <= 0 {
		c.Redis.SnapshotTTL = 24 * time.Hour
	}
	if c.Dispatch.TickInterval <= 0 {
		c.Dispatch.TickInterval = time.Minute
	}
	if c.Dispatch.TickOffset < 0 {
		c.Dispatch.TickOffset = 0
	}
	if c.Dispatch.EpsilonMs <= 0 {
		c.Dispatch.EpsilonMs = 2000
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 2
	}
	if c.Feeds.MarketWorkers <= 0 {
		c.Feeds.MarketWorkers = 2
	}
	if c.Feeds.IndicatorWorkers <= 0 {
		c.Feeds.IndicatorWorkers = 2
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = 5 * time.Minute
	}
	if c.Ops.Listen == "" {
		c.Ops.Listen = "127.0.0.1:8087"
	}
	for i := range c.Bots {
		b := &c.Bots[i]
		if b.ExchangeID == "" {
			b.ExchangeID = "binance"
		}
		if b.LookbackBars <= 0 {
			b.LookbackBars = 200
		}
	}
}

// StrategyBots converts bot config entries into strategy manifest bots.
func (c *Config) StrategyBots() []strategy.Bot {
	out := make([]strategy.Bot, 0, len(c.Bots))
	for _, b := range c.Bots {
		bot := strategy.Bot{
			ID:           b.ID,
			ExchangeID:   b.ExchangeID,
			Symbol:       b.Symbol,
			Timeframe:    b.Timeframe,
			LookbackBars: b.LookbackBars,
			DryRun:       b.DryRun,
		}
		for _, r := range b.Ranges {
			bot.Ranges = append(bot.Ranges, strategy.CandleRequirement{
				Role:         r.Role,
				Timeframe:    r.Timeframe,
				LookbackBars: r.LookbackBars,
			})
		}
		for _, ind := range b.Indicators {
			bot.Indicators = append(bot.Indicators, strategy.IndicatorRequirement{
				Role:         ind.Role,
				Timeframe:    ind.Timeframe,
				IndicatorID:  ind.IndicatorID,
				Source:       ind.Source,
				Params:       ind.Params,
				LookbackBars: ind.LookbackBars,
			})
		}
		out = append(out, bot)
	}
	return out
}
