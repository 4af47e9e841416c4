package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntearPriceSource(t *testing.T) {
	srv := nearBlocksServer(t, map[string]string{
		"/list-token-price": `{
			"wrap.near": {"price": 3.21, "decimal": 24, "symbol": "wNEAR"},
			"usdt.tether-token.near": {"price": "0.9998"},
			"dead.near": {"price": 0},
			"odd.near": 5
		}`,
	})

	s := NewIntearPriceSource(testOptions(SourceIntear, srv.URL))
	assert.Equal(t, SourceIntear, s.Name())

	prices, err := s.FetchPrices(context.Background(), []string{"WRAP.NEAR", "usdt.tether-token.near", "dead.near", "odd.near", "missing.near"})
	require.NoError(t, err)

	assert.Len(t, prices, 2)
	assert.True(t, prices["WRAP.NEAR"].Equal(decimal.RequireFromString("3.21")), "lower-cased variant is tried")
	assert.True(t, prices["usdt.tether-token.near"].Equal(decimal.RequireFromString("0.9998")))
}

func TestRefFinancePriceSource(t *testing.T) {
	srv := nearBlocksServer(t, map[string]string{
		"/list-token-price": `{
			"token.v2.ref-finance.near": {"price": "0.12", "symbol": "REF"},
			"token.burrow.near": "0.004",
			"meta-pool.near": 4.5,
			"bad.near": "n/a"
		}`,
	})

	s := NewRefFinancePriceSource(testOptions(SourceRefFinance, srv.URL))
	prices, err := s.FetchPrices(context.Background(), []string{"token.v2.ref-finance.near", "token.burrow.near", "meta-pool.near", "bad.near"})
	require.NoError(t, err)

	assert.Len(t, prices, 3)
	assert.True(t, prices["token.v2.ref-finance.near"].Equal(decimal.RequireFromString("0.12")))
	assert.True(t, prices["token.burrow.near"].Equal(decimal.RequireFromString("0.004")))
	assert.True(t, prices["meta-pool.near"].Equal(decimal.RequireFromString("4.5")))
}

func TestCoinGeckoClient_FetchPrices(t *testing.T) {
	var gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		gotIDs = r.URL.Query().Get("ids")
		_, _ = w.Write([]byte(`{"tether": {"usd": 1.001}, "usd-coin": {"usd": 0}}`))
	}))
	defer srv.Close()

	c := NewCoinGeckoClient(testOptions(SourceCoinGecko, srv.URL), registry.Default())
	prices, err := c.FetchPrices(context.Background(), []string{
		"usdt.tether-token.near",
		"dac17f958d2ee523a2206206994597c13d831ec7.factory.bridge.near",
		"a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.factory.bridge.near",
		"unmapped.near",
	})
	require.NoError(t, err)

	assert.Equal(t, "tether,usd-coin", gotIDs)
	assert.Len(t, prices, 2)
	assert.True(t, prices["usdt.tether-token.near"].Equal(decimal.RequireFromString("1.001")))
	assert.True(t, prices["dac17f958d2ee523a2206206994597c13d831ec7.factory.bridge.near"].Equal(decimal.RequireFromString("1.001")))
}

func TestCoinGeckoClient_NoMappedIDsSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	c := NewCoinGeckoClient(testOptions(SourceCoinGecko, srv.URL), registry.Default())
	prices, err := c.FetchPrices(context.Background(), []string{"meme.near"})
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestCoinGeckoClient_GetNativePrice(t *testing.T) {
	srv := nearBlocksServer(t, map[string]string{"/simple/price": `{"near": {"usd": 2.87}}`})

	c := NewCoinGeckoClient(testOptions(SourceCoinGecko, srv.URL), nil)
	price, err := c.GetNativePrice(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("2.87")))

	empty := nearBlocksServer(t, map[string]string{"/simple/price": `{}`})
	_, err = NewCoinGeckoClient(testOptions(SourceCoinGecko, empty.URL), nil).GetNativePrice(context.Background())
	assert.Error(t, err)
}

func TestPriceSourcesFeedResolver(t *testing.T) {
	intear := nearBlocksServer(t, map[string]string{"/list-token-price": `{"wrap.near": {"price": 3}}`})
	ref := nearBlocksServer(t, map[string]string{"/list-token-price": `{"wrap.near": 99, "token.burrow.near": "0.01"}`})

	resolver := service.NewPriceResolver(0,
		NewIntearPriceSource(testOptions(SourceIntear, intear.URL)),
		NewRefFinancePriceSource(testOptions(SourceRefFinance, ref.URL)),
	)
	prices := resolver.Resolve(context.Background(), []string{"wrap.near", "token.burrow.near"})

	assert.True(t, prices["wrap.near"].Equal(decimal.NewFromInt(3)), "higher priority source wins")
	assert.True(t, prices["token.burrow.near"].Equal(decimal.RequireFromString("0.01")))
}
