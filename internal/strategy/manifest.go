package strategy

import "fmt"

// Feed roles within one bot's manifest.
const (
	RoleExecution      = "execution"
	RolePrimaryRange   = "primary-range"
	RoleSecondaryRange = "secondary-range"
)

// Bot is one configured trading bot.
type Bot struct {
	ID           string                 `json:"id"`
	ExchangeID   string                 `json:"exchange_id"`
	Symbol       string                 `json:"symbol"`
	Timeframe    string                 `json:"timeframe"`
	LookbackBars int                    `json:"lookback_bars"`
	DryRun       bool                   `json:"dry_run"`
	Ranges       []CandleRequirement    `json:"ranges,omitempty"`
	Indicators   []IndicatorRequirement `json:"indicators,omitempty"`
}

// CandleRequirement declares one candle series the bot needs kept fresh.
type CandleRequirement struct {
	Role         string `json:"role"`
	Timeframe    string `json:"timeframe"`
	LookbackBars int    `json:"lookback_bars"`
}

// IndicatorRequirement declares one derived indicator the bot needs.
type IndicatorRequirement struct {
	Role         string         `json:"role"`
	Timeframe    string         `json:"timeframe"`
	IndicatorID  string         `json:"indicator_id"`
	Source       string         `json:"source"`
	Params       map[string]any `json:"params,omitempty"`
	LookbackBars int            `json:"lookback_bars"`
}

// FeedManifest is everything the coordination layer must keep fresh for one
// bot.
type FeedManifest struct {
	Candles    []CandleRequirement
	Indicators []IndicatorRequirement
}

// ManifestProvider declares what feeds a bot requires.
type ManifestProvider interface {
	RequiredFeeds(bot Bot) (FeedManifest, error)
}

// StaticManifest derives the manifest from the bot's own configuration: the
// execution timeframe plus any declared ranges and indicators.
type StaticManifest struct{}

func NewStaticManifest() *StaticManifest { return &StaticManifest{} }

func (m *StaticManifest) RequiredFeeds(bot Bot) (FeedManifest, error) {
	if bot.Timeframe == "" {
		return FeedManifest{}, fmt.Errorf("bot %s has no execution timeframe", bot.ID)
	}
	lookback := bot.LookbackBars
	if lookback <= 0 {
		lookback = 100
	}
	out := FeedManifest{
		Candles: []CandleRequirement{{
			Role:         RoleExecution,
			Timeframe:    bot.Timeframe,
			LookbackBars: lookback,
		}},
	}
	for _, r := range bot.Ranges {
		if r.Timeframe == "" {
			continue
		}
		if r.LookbackBars <= 0 {
			r.LookbackBars = lookback
		}
		out.Candles = append(out.Candles, r)
	}
	for _, ind := range bot.Indicators {
		if ind.Timeframe == "" {
			ind.Timeframe = bot.Timeframe
		}
		if ind.LookbackBars <= 0 {
			ind.LookbackBars = lookback
		}
		if ind.Source == "" {
			ind.Source = "close"
		}
		out.Indicators = append(out.Indicators, ind)
	}
	return out, nil
}
