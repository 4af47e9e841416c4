package service

import (
	"strings"

	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
)

// heuristicLargeAmount is the raw amount above which an unknown token is assumed to use 18 decimals
var heuristicLargeAmount = decimal.New(1, 15)

const (
	heuristicDecimals   = 18
	maxDerivedSymbolLen = 15
	derivedSymbolPrefix = 10
)

// TokenNormalizer resolves decimals and symbol for raw inventory records.
// It performs no I/O.
type TokenNormalizer struct {
	registry *registry.Registry
}

// NewTokenNormalizer creates a normalizer backed by the static registry
func NewTokenNormalizer(reg *registry.Registry) *TokenNormalizer {
	return &TokenNormalizer{registry: reg}
}

// Normalize converts one raw record into a holding. Holdings with a non-positive
// amount are returned as-is; dropping them is the caller's decision.
func (n *TokenNormalizer) Normalize(rec types.RawTokenRecord) types.TokenHolding {
	raw := parseRawAmount(rec.Amount)
	decimals := n.resolveDecimals(rec, raw)

	normalized := raw
	if decimals > 0 {
		normalized = raw.Shift(int32(-decimals))
	}

	symbol := firstNonEmpty(rec.Symbol, metaString(rec.Meta, func(m *types.TokenMeta) string { return m.Symbol }))
	if symbol == "" {
		symbol = DeriveSymbol(rec.Contract)
	}

	name := firstNonEmpty(rec.Name, metaString(rec.Meta, func(m *types.TokenMeta) string { return m.Name }), symbol)
	icon := firstNonEmpty(rec.Icon, metaString(rec.Meta, func(m *types.TokenMeta) string { return m.Icon }))

	sourcePrice := rec.Price
	if !sourcePrice.IsPositive() && rec.Meta != nil {
		sourcePrice = rec.Meta.Price
	}
	if !sourcePrice.IsPositive() {
		sourcePrice = decimal.Zero
	}

	return types.TokenHolding{
		ContractID:       rec.Contract,
		RawAmount:        rec.Amount,
		Decimals:         decimals,
		NormalizedAmount: normalized,
		Symbol:           symbol,
		Name:             name,
		Icon:             icon,
		SourcePrice:      sourcePrice,
	}
}

// resolveDecimals walks registry → embedded metadata → record → magnitude heuristic.
// A reported value of 0 counts as not reported.
func (n *TokenNormalizer) resolveDecimals(rec types.RawTokenRecord, raw decimal.Decimal) int {
	if n.registry != nil {
		if d, ok := n.registry.Decimals(rec.Contract); ok && d > 0 {
			return d
		}
	}
	if rec.Meta != nil && rec.Meta.Decimals != nil && *rec.Meta.Decimals > 0 {
		return *rec.Meta.Decimals
	}
	if rec.Decimals != nil && *rec.Decimals > 0 {
		return *rec.Decimals
	}
	if raw.GreaterThan(heuristicLargeAmount) {
		return heuristicDecimals
	}
	return 0
}

// DeriveSymbol builds a display symbol from a contract identifier's first dot-segment
func DeriveSymbol(contract string) string {
	segment := strings.SplitN(contract, ".", 2)[0]
	if len(segment) > maxDerivedSymbolLen {
		segment = segment[:derivedSymbolPrefix]
	}
	return strings.ToUpper(segment)
}

func parseRawAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func metaString(meta *types.TokenMeta, get func(*types.TokenMeta) string) string {
	if meta == nil {
		return ""
	}
	return get(meta)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
