package adapter

import (
	"net/http"

	"github.com/near-pulse/internal/circuitbreaker"
	"github.com/near-pulse/internal/config"
	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/retry"
	"github.com/near-pulse/internal/service"
	"golang.org/x/time/rate"
)

// Clients bundles every upstream client built from configuration
type Clients struct {
	NearBlocks *NearBlocksClient
	NearRPC    *NearRPCClient
	FastNear   *FastNearClient
	Intear     *IntearPriceSource
	RefFinance *RefFinancePriceSource
	CoinGecko  *CoinGeckoClient
	Breakers   *circuitbreaker.Manager
}

// NewBreakerManager returns a manager whose breakers only count transient
// upstream failures against a source
func NewBreakerManager() *circuitbreaker.Manager {
	return circuitbreaker.NewManager(func(name string) *circuitbreaker.Config {
		cfg := circuitbreaker.DefaultConfig(name)
		cfg.IsFailure = shouldRetry
		return cfg
	})
}

// NewClients builds all upstream clients. Every client gets its own breaker and
// the per-call timeout; NearBlocks calls share one rate limiter.
func NewClients(cfg config.SourcesConfig, reg *registry.Registry, breakers *circuitbreaker.Manager) *Clients {
	if breakers == nil {
		breakers = NewBreakerManager()
	}

	httpClient := &http.Client{}
	retryCfg := retry.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries + 1

	options := func(source, baseURL string) ClientOptions {
		return ClientOptions{
			Source:     source,
			BaseURL:    baseURL,
			Timeout:    cfg.Timeout,
			Breaker:    breakers.GetOrCreate(source),
			Retry:      retryCfg,
			HTTPClient: httpClient,
		}
	}

	nearBlocks := options(SourceNearBlocks, cfg.NearBlocksURL)
	nearBlocks.Headers = nearBlocksHeaders(cfg.NearBlocksAPIKey)
	if cfg.NearBlocksRPS > 0 {
		nearBlocks.Limiter = rate.NewLimiter(rate.Limit(cfg.NearBlocksRPS), 1)
	}

	hotContract := ""
	if reg != nil {
		hotContract = reg.HotToken()
	}

	return &Clients{
		NearBlocks: NewNearBlocksClient(nearBlocks, cfg.ReceiptPageSize),
		NearRPC:    NewNearRPCClient(options(SourceNearRPC, cfg.NearRPCURL), hotContract),
		FastNear:   NewFastNearClient(options(SourceFastNear, cfg.FastNearURL)),
		Intear:     NewIntearPriceSource(options(SourceIntear, cfg.IntearURL)),
		RefFinance: NewRefFinancePriceSource(options(SourceRefFinance, cfg.RefFinanceURL)),
		CoinGecko:  NewCoinGeckoClient(options(SourceCoinGecko, cfg.CoinGeckoURL), reg),
		Breakers:   breakers,
	}
}

// Sources wires the clients into the account service collaborators
func (c *Clients) Sources() service.Sources {
	return service.Sources{
		Balance:   c.NearRPC,
		Staking:   c.NearBlocks,
		Inventory: c.NearBlocks,
		NFTs:      c.FastNear,
		Receipts:  c.NearBlocks,
		NearPrice: c.CoinGecko,
		HotClaim:  c.NearRPC,
	}
}

// PriceSources returns the remote price sources in priority order
func (c *Clients) PriceSources() []service.PriceSource {
	return []service.PriceSource{c.Intear, c.RefFinance, c.CoinGecko}
}
