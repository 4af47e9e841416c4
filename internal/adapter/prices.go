package adapter

import (
	"context"
	"net/url"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/near-pulse/internal/errors"
	"github.com/near-pulse/internal/registry"
	"github.com/shopspring/decimal"
)

const listTokenPricePath = "/list-token-price"

// IntearPriceSource reads the Intear token price list
type IntearPriceSource struct {
	http *httpClient
}

// NewIntearPriceSource creates the Intear price source
func NewIntearPriceSource(opts ClientOptions) *IntearPriceSource {
	if opts.Source == "" {
		opts.Source = SourceIntear
	}
	return &IntearPriceSource{http: newHTTPClient(opts)}
}

// Name implements service.PriceSource
func (s *IntearPriceSource) Name() string { return s.http.source }

// FetchPrices returns prices for the requested contracts. Entries are objects with a price field.
func (s *IntearPriceSource) FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	var list map[string]jsoniter.RawMessage
	if err := s.http.getJSON(ctx, listTokenPricePath, nil, &list); err != nil {
		return nil, err
	}
	return pickPrices(list, ids, func(raw jsoniter.RawMessage) (decimal.Decimal, bool) {
		var entry struct {
			Price decimal.Decimal `json:"price"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return decimal.Zero, false
		}
		return entry.Price, true
	}), nil
}

// RefFinancePriceSource reads the Ref Finance indexer price list
type RefFinancePriceSource struct {
	http *httpClient
}

// NewRefFinancePriceSource creates the Ref Finance price source
func NewRefFinancePriceSource(opts ClientOptions) *RefFinancePriceSource {
	if opts.Source == "" {
		opts.Source = SourceRefFinance
	}
	return &RefFinancePriceSource{http: newHTTPClient(opts)}
}

// Name implements service.PriceSource
func (s *RefFinancePriceSource) Name() string { return s.http.source }

// FetchPrices returns prices for the requested contracts. Entries are a number,
// a numeric string or an object with a price field.
func (s *RefFinancePriceSource) FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	var list map[string]jsoniter.RawMessage
	if err := s.http.getJSON(ctx, listTokenPricePath, nil, &list); err != nil {
		return nil, err
	}
	return pickPrices(list, ids, parseFlexiblePrice), nil
}

func parseFlexiblePrice(raw jsoniter.RawMessage) (decimal.Decimal, bool) {
	var scalar decimal.Decimal
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return scalar, true
	}
	var entry struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return decimal.Zero, false
	}
	return entry.Price, true
}

// pickPrices looks each id up as given, then lower-cased, and keeps positive prices
func pickPrices(list map[string]jsoniter.RawMessage, ids []string, parse func(jsoniter.RawMessage) (decimal.Decimal, bool)) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal)
	for _, id := range ids {
		for _, variant := range []string{id, strings.ToLower(id)} {
			raw, ok := list[variant]
			if !ok {
				continue
			}
			if p, ok := parse(raw); ok && p.IsPositive() {
				prices[id] = p
				break
			}
		}
	}
	return prices
}

// CoinGeckoClient resolves registry-mapped contracts and the NEAR reference rate
type CoinGeckoClient struct {
	http     *httpClient
	registry *registry.Registry
}

// NewCoinGeckoClient creates a CoinGecko client
func NewCoinGeckoClient(opts ClientOptions, reg *registry.Registry) *CoinGeckoClient {
	if opts.Source == "" {
		opts.Source = SourceCoinGecko
	}
	return &CoinGeckoClient{http: newHTTPClient(opts), registry: reg}
}

// Name implements service.PriceSource
func (c *CoinGeckoClient) Name() string { return c.http.source }

// FetchPrices maps contracts to CoinGecko ids through the registry and
// returns their usd prices. Unmapped contracts are ignored.
func (c *CoinGeckoClient) FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	byGeckoID := make(map[string][]string)
	for _, id := range ids {
		if c.registry == nil {
			break
		}
		if gid, ok := c.registry.CoinGeckoID(id); ok {
			byGeckoID[gid] = append(byGeckoID[gid], id)
		}
	}
	if len(byGeckoID) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	geckoIDs := make([]string, 0, len(byGeckoID))
	for gid := range byGeckoID {
		geckoIDs = append(geckoIDs, gid)
	}
	sort.Strings(geckoIDs)

	quotes, err := c.simplePrice(ctx, geckoIDs)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal)
	for gid, contracts := range byGeckoID {
		p, ok := quotes[gid]
		if !ok || !p.IsPositive() {
			continue
		}
		for _, contract := range contracts {
			prices[contract] = p
		}
	}
	return prices, nil
}

// GetNativePrice returns the NEAR/USD rate
func (c *CoinGeckoClient) GetNativePrice(ctx context.Context) (decimal.Decimal, error) {
	quotes, err := c.simplePrice(ctx, []string{"near"})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := quotes["near"]
	if !ok {
		return decimal.Zero, errors.NewMalformedRecordError(SourceCoinGecko, "near", "missing usd quote")
	}
	return price, nil
}

func (c *CoinGeckoClient) simplePrice(ctx context.Context, geckoIDs []string) (map[string]decimal.Decimal, error) {
	var resp map[string]struct {
		USD *decimal.Decimal `json:"usd"`
	}
	query := url.Values{
		"ids":           {strings.Join(geckoIDs, ",")},
		"vs_currencies": {"usd"},
	}
	if err := c.http.getJSON(ctx, "/simple/price", query, &resp); err != nil {
		return nil, err
	}

	quotes := make(map[string]decimal.Decimal, len(resp))
	for gid, q := range resp {
		if q.USD != nil {
			quotes[gid] = *q.USD
		}
	}
	return quotes, nil
}
