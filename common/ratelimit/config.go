package ratelimit

// TierConfig defines the limit for one workflow tier
type TierConfig struct {
	Tier          Tier
	Limit         int64
	WindowSeconds int
	Description   string
}

// DefaultTierConfigs are the per-user limits by tier
var DefaultTierConfigs = map[Tier]TierConfig{
	TierSimple: {
		Tier:          TierSimple,
		Limit:         100,
		WindowSeconds: 60,
		Description:   "Simple workflows (no model nodes) - 100 executions/minute",
	},
	TierStandard: {
		Tier:          TierStandard,
		Limit:         20,
		WindowSeconds: 60,
		Description:   "Standard workflows (1-2 model nodes) - 20 executions/minute",
	},
	TierHeavy: {
		Tier:          TierHeavy,
		Limit:         5,
		WindowSeconds: 60,
		Description:   "Heavy workflows (3+ model nodes) - 5 executions/minute",
	},
}

// GlobalConfig is the service-wide limit
type GlobalConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultGlobal caps total executions across all users
var DefaultGlobal = GlobalConfig{
	Limit:         100,
	WindowSeconds: 60,
}

// LimitForTier returns the limit for a tier, falling back to the most
// restrictive tier for unknown values
func LimitForTier(tier Tier) int64 {
	if cfg, ok := DefaultTierConfigs[tier]; ok {
		return cfg.Limit
	}
	return DefaultTierConfigs[TierHeavy].Limit
}

// WindowForTier returns the window for a tier
func WindowForTier(tier Tier) int {
	if cfg, ok := DefaultTierConfigs[tier]; ok {
		return cfg.WindowSeconds
	}
	return DefaultTierConfigs[TierHeavy].WindowSeconds
}

// AllTiers returns the configured tiers for API responses
func AllTiers() []TierConfig {
	return []TierConfig{
		DefaultTierConfigs[TierSimple],
		DefaultTierConfigs[TierStandard],
		DefaultTierConfigs[TierHeavy],
	}
}
