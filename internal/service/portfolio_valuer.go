package service

import (
	"sort"

	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
)

// Spam-range defaults: unpriced holdings whose amount falls inside the window are
// kept visible as possibly legitimate low-liquidity tokens.
const (
	DefaultSpamRangeMin = 15000
	DefaultSpamRangeMax = 500000
	DefaultMinUSD       = 1
)

// majorMinUSD is the fixed value floor for the major tier
var majorMinUSD = decimal.NewFromInt(1)

// ValuerConfig holds the tiering thresholds
type ValuerConfig struct {
	MinUSD       decimal.Decimal
	SpamRangeMin decimal.Decimal
	SpamRangeMax decimal.Decimal
}

// DefaultValuerConfig returns the standard thresholds
func DefaultValuerConfig() ValuerConfig {
	return ValuerConfig{
		MinUSD:       decimal.NewFromInt(DefaultMinUSD),
		SpamRangeMin: decimal.NewFromInt(DefaultSpamRangeMin),
		SpamRangeMax: decimal.NewFromInt(DefaultSpamRangeMax),
	}
}

// PortfolioValuer splits priced holdings into major, filtered and hidden tiers
type PortfolioValuer struct {
	registry *registry.Registry
	config   ValuerConfig
}

// NewPortfolioValuer creates a valuer
func NewPortfolioValuer(reg *registry.Registry, config ValuerConfig) *PortfolioValuer {
	return &PortfolioValuer{registry: reg, config: config}
}

// Value computes usd values and partitions holdings. Holdings with a non-positive
// amount are excluded from every tier.
func (v *PortfolioValuer) Value(holdings []types.TokenHolding, prices map[string]decimal.Decimal) types.PortfolioTiers {
	tiers := types.PortfolioTiers{
		Major:    []types.ValuedHolding{},
		Filtered: []types.ValuedHolding{},
		Hidden:   []types.ValuedHolding{},
	}

	for _, h := range holdings {
		if !h.NormalizedAmount.IsPositive() {
			continue
		}

		price := prices[h.ContractID]
		if !price.IsPositive() {
			price = decimal.Zero
		}
		valued := types.ValuedHolding{
			TokenHolding:  h,
			ResolvedPrice: price,
			USDValue:      h.NormalizedAmount.Mul(price),
			IsMajor:       v.registry != nil && v.registry.IsMajor(h.ContractID),
		}

		switch {
		case valued.IsMajor && price.IsPositive() && valued.USDValue.GreaterThanOrEqual(majorMinUSD):
			tiers.Major = append(tiers.Major, valued)
		case valued.IsMajor:
			// unpriced or dust major tokens stay accounted for
			tiers.Hidden = append(tiers.Hidden, valued)
		case v.visible(valued):
			tiers.Filtered = append(tiers.Filtered, valued)
		default:
			tiers.Hidden = append(tiers.Hidden, valued)
		}
	}

	sort.SliceStable(tiers.Major, func(i, j int) bool {
		return tiers.Major[i].USDValue.GreaterThan(tiers.Major[j].USDValue)
	})
	sort.SliceStable(tiers.Filtered, func(i, j int) bool {
		return filteredSortKey(tiers.Filtered[i]).GreaterThan(filteredSortKey(tiers.Filtered[j]))
	})

	return tiers
}

func (v *PortfolioValuer) visible(h types.ValuedHolding) bool {
	if h.ResolvedPrice.IsPositive() {
		return h.USDValue.GreaterThanOrEqual(v.config.MinUSD)
	}
	return h.NormalizedAmount.GreaterThanOrEqual(v.config.SpamRangeMin) &&
		h.NormalizedAmount.LessThanOrEqual(v.config.SpamRangeMax)
}

// filteredSortKey orders priced holdings by value and unpriced ones by amount
func filteredSortKey(h types.ValuedHolding) decimal.Decimal {
	if h.ResolvedPrice.IsPositive() {
		return h.USDValue
	}
	return h.NormalizedAmount
}
