package config

import (
	"fmt"

	"tidemark/internal/indicator"
	"tidemark/internal/market"
	"tidemark/internal/strategy"
)

func validate(c *Config) error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite or memory, got %q", c.Store.Driver)
	}
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot must be configured")
	}
	seen := make(map[string]bool, len(c.Bots))
	for i, b := range c.Bots {
		if b.ID == "" {
			return fmt.Errorf("bots[%d]: id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("bots[%d]: duplicate id %q", i, b.ID)
		}
		seen[b.ID] = true
		if b.Symbol == "" {
			return fmt.Errorf("bot %s: symbol is required", b.ID)
		}
		if _, ok := market.FrameMillis(b.Timeframe); !ok {
			return fmt.Errorf("bot %s: invalid timeframe %q", b.ID, b.Timeframe)
		}
		for _, r := range b.Ranges {
			if !validRole(r.Role) {
				return fmt.Errorf("bot %s: invalid range role %q", b.ID, r.Role)
			}
			if _, ok := market.FrameMillis(r.Timeframe); !ok {
				return fmt.Errorf("bot %s: invalid range timeframe %q", b.ID, r.Timeframe)
			}
		}
		for _, ind := range b.Indicators {
			if !validRole(ind.Role) {
				return fmt.Errorf("bot %s: invalid indicator role %q", b.ID, ind.Role)
			}
			// Empty inherits the bot's execution timeframe.
			if ind.Timeframe != "" {
				if _, ok := market.FrameMillis(ind.Timeframe); !ok {
					return fmt.Errorf("bot %s: invalid indicator timeframe %q", b.ID, ind.Timeframe)
				}
			}
			if err := indicator.ValidateParams(ind.IndicatorID, ind.Params); err != nil {
				return fmt.Errorf("bot %s: indicator %s: %w", b.ID, ind.IndicatorID, err)
			}
		}
	}
	return nil
}

func validRole(role string) bool {
	switch role {
	case strategy.RoleExecution, strategy.RolePrimaryRange, strategy.RoleSecondaryRange:
		return true
	default:
		return false
	}
}
