// Package ratelimit tracks per-provider call budgets in Redis so that every
// process sharing an API key draws from the same quota.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the budget window: provider quotas reset daily
const DefaultWindow = 24 * time.Hour

// KeyPrefix prefixes every budget counter key
const KeyPrefix = "budget:"

// ErrBudgetExhausted is returned once a provider's window budget is spent
var ErrBudgetExhausted = errors.New("provider call budget exhausted")

// consumeScript atomically checks and increments a window counter.
// Returns {allowed, used}.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local n = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + n > limit then
		return {0, used}
	end
	used = redis.call('INCRBY', key, n)
	redis.call('EXPIRE', key, ttl)
	return {1, used}
`)

// CallBudget caps the calls made to one provider per window
type CallBudget struct {
	redis    *redis.Client
	provider string
	limit    int
	window   time.Duration
	now      func() time.Time
}

// BudgetConfig configures a CallBudget
type BudgetConfig struct {
	Redis    *redis.Client
	Provider string
	// Limit is the number of calls allowed per window
	Limit  int
	Window time.Duration
}

// Usage reports the state of the current window
type Usage struct {
	Provider    string        `json:"provider"`
	Used        int           `json:"used"`
	Limit       int           `json:"limit"`
	ResetsAfter time.Duration `json:"resetsAfter"`
}

// NewCallBudget creates a budget. Returns an error if the configuration is invalid.
func NewCallBudget(cfg *BudgetConfig) (*CallBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Provider == "" {
		return nil, errors.New("provider is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", cfg.Limit)
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &CallBudget{
		redis:    cfg.Redis,
		provider: cfg.Provider,
		limit:    cfg.Limit,
		window:   window,
		now:      time.Now,
	}, nil
}

// windowStart aligns now to the window boundary (UTC)
func (b *CallBudget) windowStart() time.Time {
	return b.now().UTC().Truncate(b.window)
}

func (b *CallBudget) key(start time.Time) string {
	return KeyPrefix + b.provider + ":" + strconv.FormatInt(start.Unix(), 10)
}

// TryConsume takes n calls from the current window. When the budget is
// spent it returns false and the time until the window resets.
func (b *CallBudget) TryConsume(ctx context.Context, n int) (bool, time.Duration, error) {
	if n <= 0 {
		return true, 0, nil
	}
	start := b.windowStart()
	resetsAfter := start.Add(b.window).Sub(b.now())

	// keys outlive their window slightly so a late reader still sees them
	ttl := int((b.window + time.Minute).Seconds())
	res, err := consumeScript.Run(ctx, b.redis, []string{b.key(start)}, n, b.limit, ttl).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to consume %s budget: %w", b.provider, err)
	}
	if res[0] != 1 {
		return false, resetsAfter, nil
	}
	return true, 0, nil
}

// Usage returns the current window's consumption
func (b *CallBudget) Usage(ctx context.Context) (*Usage, error) {
	start := b.windowStart()
	used, err := b.redis.Get(ctx, b.key(start)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read %s budget: %w", b.provider, err)
	}
	return &Usage{
		Provider:    b.provider,
		Used:        used,
		Limit:       b.limit,
		ResetsAfter: start.Add(b.window).Sub(b.now()),
	}, nil
}

// Provider returns the provider this budget guards
func (b *CallBudget) Provider() string {
	return b.provider
}
