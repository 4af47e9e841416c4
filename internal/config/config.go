// Package config provides configuration management for near-pulse.
// It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Sources   SourcesConfig
	Portfolio PortfolioConfig
	Activity  ActivityConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// RedisConfig holds Redis configuration. Redis is optional.
type RedisConfig struct {
	URL            string
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// Enabled reports whether a Redis endpoint is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Host != ""
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Prefix          string
	TTL             time.Duration
	FallbackCleanup time.Duration
}

// SourcesConfig holds upstream endpoints
type SourcesConfig struct {
	NearRPCURL       string
	NearBlocksURL    string
	NearBlocksAPIKey string
	FastNearURL      string
	IntearURL        string
	RefFinanceURL    string
	CoinGeckoURL     string
	Timeout          time.Duration
	NearBlocksRPS    float64
	ReceiptPageSize  int
	MaxRetries       int
}

// PortfolioConfig holds tiering thresholds
type PortfolioConfig struct {
	MinUSD       float64
	SpamRangeMin float64
	SpamRangeMax float64
}

// ActivityConfig holds activity feed settings
type ActivityConfig struct {
	RecentLimit int
}

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{
				"https://nearpulseapp.netlify.app",
				"https://near-pulse.vercel.app",
				"http://localhost:5173",
			}),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", getEnv("UPSTASH_REDIS_URL", "")),
			Host:           getEnv("REDIS_HOST", ""),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
		},
		Cache: CacheConfig{
			Prefix:          getEnv("CACHE_PREFIX", "np:"),
			TTL:             getEnvAsDuration("CACHE_TTL", 300*time.Second),
			FallbackCleanup: getEnvAsDuration("CACHE_FALLBACK_CLEANUP", 10*time.Minute),
		},
		Sources: SourcesConfig{
			NearRPCURL:       getEnv("NEAR_RPC_URL", "https://rpc.mainnet.near.org"),
			NearBlocksURL:    getEnv("NEARBLOCKS_API", "https://api.nearblocks.io/v1"),
			NearBlocksAPIKey: getEnv("NEARBLOCKS_API_KEY", ""),
			FastNearURL:      getEnv("FASTNEAR_API", "https://api.fastnear.com/v1"),
			IntearURL:        getEnv("INTEAR_API", "https://prices.intear.tech"),
			RefFinanceURL:    getEnv("REF_FINANCE_API", "https://indexer.ref.finance"),
			CoinGeckoURL:     getEnv("COINGECKO_API", "https://api.coingecko.com/api/v3"),
			Timeout:          getEnvAsDuration("API_TIMEOUT", 10*time.Second),
			NearBlocksRPS:    getEnvAsFloat("NEARBLOCKS_RPS", 2),
			ReceiptPageSize:  getEnvAsInt("RECEIPT_PAGE_SIZE", 50),
			MaxRetries:       getEnvAsInt("SOURCE_MAX_RETRIES", 2),
		},
		Portfolio: PortfolioConfig{
			MinUSD:       getEnvAsFloat("PORTFOLIO_MIN_USD", 1),
			SpamRangeMin: getEnvAsFloat("PORTFOLIO_SPAM_RANGE_MIN", 15000),
			SpamRangeMax: getEnvAsFloat("PORTFOLIO_SPAM_RANGE_MAX", 500000),
		},
		Activity: ActivityConfig{
			RecentLimit: getEnvAsInt("ACTIVITY_RECENT_LIMIT", 15),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Sources.Timeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive, got %s", c.Sources.Timeout)
	}
	if c.Sources.ReceiptPageSize <= 0 {
		return fmt.Errorf("RECEIPT_PAGE_SIZE must be positive, got %d", c.Sources.ReceiptPageSize)
	}
	if c.Portfolio.MinUSD < 0 {
		return fmt.Errorf("PORTFOLIO_MIN_USD must not be negative, got %v", c.Portfolio.MinUSD)
	}
	if c.Portfolio.SpamRangeMin > c.Portfolio.SpamRangeMax {
		return fmt.Errorf("PORTFOLIO_SPAM_RANGE_MIN (%v) exceeds PORTFOLIO_SPAM_RANGE_MAX (%v)",
			c.Portfolio.SpamRangeMin, c.Portfolio.SpamRangeMax)
	}
	if c.Activity.RecentLimit <= 0 {
		return fmt.Errorf("ACTIVITY_RECENT_LIMIT must be positive, got %d", c.Activity.RecentLimit)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
