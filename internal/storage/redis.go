package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portfolio-aggregator/internal/config"
)

const priceKeyPrefix = "price:"

// RedisCache wraps the Redis client
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// PriceKey returns the cache key of a symbol's spot price: price:<SYMBOL>
func PriceKey(symbol string) string {
	return priceKeyPrefix + strings.ToUpper(symbol)
}

// GetPrices returns the cached USD prices of symbols; misses are absent from the map
func (r *RedisCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = PriceKey(s)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached prices: %w", err)
	}

	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(str, 64)
		if err != nil {
			continue
		}
		out[strings.ToUpper(symbols[i])] = price
	}
	return out, nil
}

// SetPrices caches prices for ttl in one pipeline round trip
func (r *RedisCache) SetPrices(ctx context.Context, prices map[string]float64, ttl time.Duration) error {
	if len(prices) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for symbol, price := range prices {
		pipe.Set(ctx, PriceKey(symbol), strconv.FormatFloat(price, 'g', -1, 64), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache prices: %w", err)
	}
	return nil
}

// InvalidatePrices drops cached prices for symbols
func (r *RedisCache) InvalidatePrices(ctx context.Context, symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = PriceKey(s)
	}
	return r.client.Del(ctx, keys...).Err()
}
