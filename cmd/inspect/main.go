// Command inspect fetches one account through the full pipeline and prints the
// result as indented JSON. It uses the in-process cache only.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/near-pulse/internal/adapter"
	"github.com/near-pulse/internal/config"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/service"
	"github.com/near-pulse/internal/storage"
	"github.com/shopspring/decimal"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	account := flag.String("account", "", "NEAR account id to inspect (required)")
	section := flag.String("section", "all", "balance, activity, stats, nft or all")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	if *account == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays valid JSON
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logging.GetGlobalLogger().SetOutput(os.Stderr)

	reg := registry.Default()
	clients := adapter.NewClients(cfg.Sources, reg, nil)
	accounts := service.NewAccountService(
		clients.Sources(),
		service.NewPriceResolver(cfg.Sources.Timeout, clients.PriceSources()...),
		storage.NewCacheService(nil, cfg.Cache),
		reg,
		service.AccountServiceConfig{
			Valuer: service.ValuerConfig{
				MinUSD:       decimal.NewFromFloat(cfg.Portfolio.MinUSD),
				SpamRangeMin: decimal.NewFromFloat(cfg.Portfolio.SpamRangeMin),
				SpamRangeMax: decimal.NewFromFloat(cfg.Portfolio.SpamRangeMax),
			},
			RecentLimit: cfg.Activity.RecentLimit,
		},
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := collect(ctx, accounts, *account, *section)
	if err != nil {
		logging.WithError(err).WithAccount(*account).Error("Inspection failed")
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}

func collect(ctx context.Context, accounts *service.AccountService, account, section string) (interface{}, error) {
	switch section {
	case "balance":
		return accounts.GetBalance(ctx, account)
	case "activity":
		return accounts.GetActivity(ctx, account)
	case "stats":
		return accounts.GetStats(ctx, account)
	case "nft":
		return accounts.GetNFTs(ctx, account)
	case "all":
	default:
		return nil, fmt.Errorf("unknown section %q", section)
	}

	balance, err := accounts.GetBalance(ctx, account)
	if err != nil {
		return nil, err
	}
	activity, err := accounts.GetActivity(ctx, account)
	if err != nil {
		return nil, err
	}
	stats, err := accounts.GetStats(ctx, account)
	if err != nil {
		return nil, err
	}
	nfts, err := accounts.GetNFTs(ctx, account)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"balance":  balance,
		"activity": activity,
		"stats":    stats,
		"nft":      nfts,
	}, nil
}
