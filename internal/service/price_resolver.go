package service

import (
	"context"
	"time"

	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PriceSource returns identifier→price snapshots. Results may be partial or empty.
type PriceSource interface {
	Name() string
	FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// PriceResolver merges quotes from an ordered list of sources. Sources are queried
// concurrently; the first strictly positive value in priority order wins.
type PriceResolver struct {
	sources []PriceSource
	timeout time.Duration
}

// NewPriceResolver creates a resolver. sources are given in priority order.
func NewPriceResolver(timeout time.Duration, sources ...PriceSource) *PriceResolver {
	return &PriceResolver{sources: sources, timeout: timeout}
}

// Resolve returns a price for every identifier, 0 meaning unknown. extra sources
// are consulted after the configured ones, in the order given.
func (r *PriceResolver) Resolve(ctx context.Context, ids []string, extra ...PriceSource) map[string]decimal.Decimal {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}
	}

	sources := make([]PriceSource, 0, len(r.sources)+len(extra))
	sources = append(sources, r.sources...)
	sources = append(sources, extra...)

	return MergeQuotes(ids, r.fetchQuotes(ctx, sources, ids))
}

// fetchQuotes queries every source independently. A failing source contributes an
// empty quote at its own position.
func (r *PriceResolver) fetchQuotes(ctx context.Context, sources []PriceSource, ids []string) []types.PriceQuote {
	quotes := make([]types.PriceQuote, len(sources))
	logger := logging.FromContext(ctx)

	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			quotes[i] = types.PriceQuote{Source: src.Name(), FetchedAt: time.Now()}

			callCtx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}

			prices, err := src.FetchPrices(callCtx, ids)
			if err != nil {
				logger.WithSource(src.Name()).WithError(err).Warn("Price source failed, treating as empty")
				return nil
			}
			quotes[i].Prices = prices
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

// MergeQuotes picks, per identifier, the first strictly positive price across quotes
// in order, trying the identifier then its lower-cased form in each quote.
func MergeQuotes(ids []string, quotes []types.PriceQuote) map[string]decimal.Decimal {
	resolved := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		price := decimal.Zero
		for _, q := range quotes {
			if p, ok := q.Lookup(id); ok {
				price = p
				break
			}
		}
		resolved[id] = price
	}
	return resolved
}

// embeddedPriceSource serves the price reported alongside each holding
type embeddedPriceSource struct {
	prices map[string]decimal.Decimal
}

// NewEmbeddedPriceSource exposes the holdings' own reported prices as a last-resort source
func NewEmbeddedPriceSource(holdings []types.TokenHolding) PriceSource {
	prices := make(map[string]decimal.Decimal, len(holdings))
	for _, h := range holdings {
		if h.SourcePrice.IsPositive() {
			prices[h.ContractID] = h.SourcePrice
		}
	}
	return &embeddedPriceSource{prices: prices}
}

func (s *embeddedPriceSource) Name() string { return "embedded" }

func (s *embeddedPriceSource) FetchPrices(_ context.Context, _ []string) (map[string]decimal.Decimal, error) {
	return s.prices, nil
}
