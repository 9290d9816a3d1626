package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("PRICE_CACHE_TTL", "30s")
	t.Setenv("BETA_SOURCES", "Binance, cryptocompare")
	t.Setenv("ARBITRUM_RPC_PRIMARY", "https://arb.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Pricing.CacheTTL != 30*time.Second {
		t.Errorf("Pricing.CacheTTL = %v, want %v", cfg.Pricing.CacheTTL, 30*time.Second)
	}
	if got := cfg.History.Sources; len(got) != 2 || got[0] != "binance" || got[1] != "cryptocompare" {
		t.Errorf("History.Sources = %v", got)
	}
	if cfg.History.Benchmark != "BTC" || cfg.History.LookbackDays != 180 {
		t.Errorf("History = %+v, want BTC/180 defaults", cfg.History)
	}
	if cfg.Pipeline.ClosedLookback != 24*time.Hour || cfg.Pipeline.DustThreshold != 1 || cfg.Pipeline.MissingSymbolMinValue != 5 {
		t.Errorf("Pipeline = %+v, want defaults", cfg.Pipeline)
	}
	if _, ok := cfg.Providers.EVMChains["arbitrum"]; !ok {
		t.Errorf("EVMChains missing arbitrum: %v", cfg.Providers.EVMChains)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			History:  HistoryConfig{Benchmark: "BTC", LookbackDays: 180, Sources: []string{"binance"}},
			Pipeline: PipelineConfig{DustThreshold: 1, RunAt: "00:00"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"lookback too short", func(c *Config) { c.History.LookbackDays = 1 }, true},
		{"no sources", func(c *Config) { c.History.Sources = nil }, true},
		{"negative dust", func(c *Config) { c.Pipeline.DustThreshold = -1 }, true},
		{"bad run time", func(c *Config) { c.Pipeline.RunAt = "midnight" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvAsFloatAndList(t *testing.T) {
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_FLOAT_BAD", "x")
	t.Setenv("TEST_LIST", " a, ,B ")

	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT_BAD", 1); got != 1 {
		t.Errorf("getEnvAsFloat() = %v, want default 1", got)
	}
	if got := getEnvAsList("TEST_LIST", nil); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("getEnvAsList() = %v", got)
	}
}

func TestPostgresURL(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: "5432", Database: "portfolio", User: "u", Password: "p"}
	if got := c.URL(); got != "postgres://u:p@db:5432/portfolio?sslmode=disable" {
		t.Errorf("URL() = %v", got)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
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
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
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
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOTSET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}
