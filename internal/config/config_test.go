package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("NEARBLOCKS_API_KEY", "secret")
	t.Setenv("PORTFOLIO_SPAM_RANGE_MIN", "1000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, 30*time.Second)
	}
	if cfg.Cache.Prefix != "np:" {
		t.Errorf("Cache.Prefix = %v, want np:", cfg.Cache.Prefix)
	}
	if cfg.Sources.NearBlocksAPIKey != "secret" {
		t.Errorf("Sources.NearBlocksAPIKey = %v, want secret", cfg.Sources.NearBlocksAPIKey)
	}
	if cfg.Portfolio.SpamRangeMin != 1000 || cfg.Portfolio.SpamRangeMax != 500000 {
		t.Errorf("spam range = [%v, %v], want [1000, 500000]", cfg.Portfolio.SpamRangeMin, cfg.Portfolio.SpamRangeMax)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.Server.AllowedOrigins)
	}
	if cfg.Activity.RecentLimit != 15 {
		t.Errorf("Activity.RecentLimit = %v, want 15", cfg.Activity.RecentLimit)
	}
}

func TestLoadConfigRejectsInvertedSpamRange(t *testing.T) {
	t.Setenv("PORTFOLIO_SPAM_RANGE_MIN", "900000")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for inverted spam range")
	}
}

func TestRedisEnabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  RedisConfig
		want bool
	}{
		{name: "url", cfg: RedisConfig{URL: "redis://localhost:6379"}, want: true},
		{name: "host", cfg: RedisConfig{Host: "localhost", Port: "6379"}, want: true},
		{name: "nothing configured", cfg: RedisConfig{Port: "6379"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{name: "returns integer when valid", key: "TEST_INT", defaultValue: 100, envValue: "200", want: 200},
		{name: "returns default when invalid", key: "TEST_INT_INVALID", defaultValue: 100, envValue: "invalid", want: 100},
		{name: "returns default when not set", key: "TEST_INT_NOTSET", defaultValue: 100, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnvAsInt(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_FLOAT_BAD", "two")

	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT_BAD", 1); got != 1 {
		t.Errorf("getEnvAsFloat() = %v, want 1", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{name: "returns duration when valid", key: "TEST_DURATION", defaultValue: 10 * time.Second, envValue: "30s", want: 30 * time.Second},
		{name: "returns default when invalid", key: "TEST_DURATION_INVALID", defaultValue: 10 * time.Second, envValue: "invalid", want: 10 * time.Second},
		{name: "returns default when not set", key: "TEST_DURATION_NOTSET", defaultValue: 10 * time.Second, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnvAsDuration(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
