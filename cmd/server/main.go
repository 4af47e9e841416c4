// Package main provides the API server entry point for near-pulse.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/near-pulse/internal/adapter"
	"github.com/near-pulse/internal/api"
	"github.com/near-pulse/internal/config"
	"github.com/near-pulse/internal/logging"
	"github.com/near-pulse/internal/metrics"
	"github.com/near-pulse/internal/registry"
	"github.com/near-pulse/internal/service"
	"github.com/near-pulse/internal/storage"
	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(logging.Fields{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	metrics.MustRegisterMetrics()

	// Redis is optional; without it the in-process tier serves alone
	var redisCache *storage.RedisCache
	if cfg.Redis.Enabled() {
		redisCache, err = storage.NewRedisCache(&cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, using in-memory cache only")
			redisCache = nil
		} else {
			defer redisCache.Close()
			logger.Info("Redis cache connected")
		}
	}
	cacheService := storage.NewCacheService(redisCache, cfg.Cache)

	reg := registry.Default()
	breakers := adapter.NewBreakerManager()
	clients := adapter.NewClients(cfg.Sources, reg, breakers)

	accounts := service.NewAccountService(
		clients.Sources(),
		service.NewPriceResolver(cfg.Sources.Timeout, clients.PriceSources()...),
		cacheService,
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

	server := api.NewServer(cfg.Server, cfg.RateLimit, accounts, breakers, cacheService)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(logging.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
