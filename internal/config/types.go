package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Bots      []BotConfig     `mapstructure:"bots"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type ExchangeConfig struct {
	RESTBaseURL  string        `mapstructure:"rest_base_url"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	ProxyEnabled bool          `mapstructure:"proxy_enabled"`
	RESTProxyURL string        `mapstructure:"rest_proxy_url"`
}

type StoreConfig struct {
	// Driver selects the persistence backend: "sqlite" or "memory".
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	RunsPath string `mapstructure:"runs_path"`
}

type RedisConfig struct {
	// Enabled moves the refresh/job queues and snapshot blobs to Redis so
	// multiple processes can share them.
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Prefix      string        `mapstructure:"prefix"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type DispatchConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	TickOffset   time.Duration `mapstructure:"tick_offset"`
	EpsilonMs    int64         `mapstructure:"epsilon_ms"`
	Workers      int           `mapstructure:"workers"`
}

type FeedsConfig struct {
	MarketWorkers    int `mapstructure:"market_workers"`
	IndicatorWorkers int `mapstructure:"indicator_workers"`
}

type ReconcileConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type BotConfig struct {
	ID           string                  `mapstructure:"id"`
	ExchangeID   string                  `mapstructure:"exchange_id"`
	Symbol       string                  `mapstructure:"symbol"`
	Timeframe    string                  `mapstructure:"timeframe"`
	LookbackBars int                     `mapstructure:"lookback_bars"`
	DryRun       bool                    `mapstructure:"dry_run"`
	Ranges       []BotRangeConfig        `mapstructure:"ranges"`
	Indicators   []BotIndicatorConfig    `mapstructure:"indicators"`
}

type BotRangeConfig struct {
	Role         string `mapstructure:"role"`
	Timeframe    string `mapstructure:"timeframe"`
	LookbackBars int    `mapstructure:"lookback_bars"`
}

type BotIndicatorConfig struct {
	Role         string         `mapstructure:"role"`
	Timeframe    string         `mapstructure:"timeframe"`
	IndicatorID  string         `mapstructure:"indicator_id"`
	Source       string         `mapstructure:"source"`
	Params       map[string]any `mapstructure:"params"`
	LookbackBars int            `mapstructure:"lookback_bars"`
}
