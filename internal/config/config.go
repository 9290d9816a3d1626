// Package config loads portfolio aggregator settings from the environment,
// optionally seeded from a .env file.
package config

import (
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
	Database  DatabaseConfig
	Pricing   PricingConfig
	History   HistoryConfig
	Binance   BinanceConfig
	Providers ProvidersConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// form used by golang-migrate
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// PricingConfig holds spot price provider settings
type PricingConfig struct {
	CryptoCompareURL    string
	CryptoCompareAPIKey string
	CoinGeckoURL        string
	CacheTTL            time.Duration
	RequestsPerSecond   float64
	// DailyCallBudget caps CryptoCompare calls per UTC day; 0 is unlimited
	DailyCallBudget int
}

// HistoryConfig controls the beta estimator
type HistoryConfig struct {
	Benchmark    string
	LookbackDays int
	// Sources is the ordered fallback chain of history sources
	Sources []string
}

// BinanceConfig holds optional Binance credentials; klines are public
type BinanceConfig struct {
	APIKey    string
	APISecret string
}

// ProvidersConfig holds wallet provider endpoints and credentials
type ProvidersConfig struct {
	DydxIndexerURL   string
	OctavURL         string
	OctavToken       string
	BlockCypherURL   string
	BlockCypherToken string
	CircleURL        string
	CircleAPIKey     string
	EVMChains        map[string]EVMChainConfig
}

// EVMChainConfig holds RPC endpoints for one EVM chain
type EVMChainConfig struct {
	RPCPrimary   string
	RPCSecondary string
}

// PipelineConfig holds snapshot gap-filling thresholds
type PipelineConfig struct {
	ClosedLookback        time.Duration
	DustThreshold         float64
	MissingSymbolMinValue float64
	RunAt                 string
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
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
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "portfolio"),
				User:           getEnv("POSTGRES_USER", "portfolio"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "portfolio"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Pricing: PricingConfig{
			CryptoCompareURL:    getEnv("CRYPTOCOMPARE_URL", "https://min-api.cryptocompare.com"),
			CryptoCompareAPIKey: getEnv("CRYPTOCOMPARE_API_KEY", ""),
			CoinGeckoURL:        getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
			CacheTTL:            getEnvAsDuration("PRICE_CACHE_TTL", 10*time.Minute),
			RequestsPerSecond:   getEnvAsFloat("PRICE_REQUESTS_PER_SECOND", 5),
			DailyCallBudget:     getEnvAsInt("CRYPTOCOMPARE_DAILY_CALL_BUDGET", 0),
		},
		History: HistoryConfig{
			Benchmark:    strings.ToUpper(getEnv("BETA_BENCHMARK", "BTC")),
			LookbackDays: getEnvAsInt("BETA_LOOKBACK_DAYS", 180),
			Sources:      getEnvAsList("BETA_SOURCES", []string{"cryptocompare", "binance"}),
		},
		Binance: BinanceConfig{
			APIKey:    getEnv("BINANCE_API_KEY", ""),
			APISecret: getEnv("BINANCE_API_SECRET", ""),
		},
		Providers: ProvidersConfig{
			DydxIndexerURL:   getEnv("DYDX_INDEXER_URL", "https://indexer.dydx.trade/v4"),
			OctavURL:         getEnv("OCTAV_URL", "https://api.octav.fi/v1"),
			OctavToken:       getEnv("OCTAV_API_TOKEN", ""),
			BlockCypherURL:   getEnv("BLOCKCYPHER_URL", "https://api.blockcypher.com/v1"),
			BlockCypherToken: getEnv("BLOCKCYPHER_TOKEN", ""),
			CircleURL:        getEnv("CIRCLE_URL", "https://api.circle.com/v1"),
			CircleAPIKey:     getEnv("CIRCLE_API_KEY", ""),
			EVMChains:        loadEVMChains(),
		},
		Pipeline: PipelineConfig{
			ClosedLookback:        getEnvAsDuration("CLOSED_POSITION_LOOKBACK", 24*time.Hour),
			DustThreshold:         getEnvAsFloat("DUST_THRESHOLD_USD", 1),
			MissingSymbolMinValue: getEnvAsFloat("MISSING_SYMBOL_MIN_VALUE_USD", 5),
			RunAt:                 getEnv("SNAPSHOT_RUN_AT", "00:00"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
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

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.History.LookbackDays < 2 {
		return fmt.Errorf("BETA_LOOKBACK_DAYS must be at least 2, got %d", c.History.LookbackDays)
	}
	if c.History.Benchmark == "" {
		return fmt.Errorf("BETA_BENCHMARK must not be empty")
	}
	if len(c.History.Sources) == 0 {
		return fmt.Errorf("BETA_SOURCES must name at least one source")
	}
	if c.Pipeline.DustThreshold < 0 {
		return fmt.Errorf("DUST_THRESHOLD_USD must be non-negative")
	}
	if _, err := time.Parse("15:04", c.Pipeline.RunAt); err != nil {
		return fmt.Errorf("SNAPSHOT_RUN_AT must be HH:MM: %w", err)
	}
	return nil
}

// loadEVMChains reads <CHAIN>_RPC_PRIMARY / <CHAIN>_RPC_SECONDARY for every
// chain in EVM_CHAINS; chains without a primary endpoint are skipped
func loadEVMChains() map[string]EVMChainConfig {
	chains := make(map[string]EVMChainConfig)
	for _, chain := range getEnvAsList("EVM_CHAINS", []string{"ethereum", "arbitrum", "optimism", "base", "polygon"}) {
		prefix := strings.ToUpper(chain)
		primary := getEnv(prefix+"_RPC_PRIMARY", "")
		if primary == "" {
			continue
		}
		chains[chain] = EVMChainConfig{
			RPCPrimary:   primary,
			RPCSecondary: getEnv(prefix+"_RPC_SECONDARY", ""),
		}
	}
	return chains
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

// getEnvAsList splits a comma separated variable, lowercasing and dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
