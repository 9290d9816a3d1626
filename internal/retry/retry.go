package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on any single delay
	Multiplier   float64       // growth factor between delays
	// ShouldRetry decides whether a failed attempt is repeated. Nil retries
	// only errors categorized as retryable (upstream rate limiting).
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns the provider retry policy: 5 attempts, 5s, 10s, 20s, 40s
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// Err returns nil on success, otherwise the last error annotated with the attempt count
func (r *RetryResult) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("operation failed after %d attempts: %w", r.Attempts, r.LastError)
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn until it succeeds, returns a
// non-retryable error, runs out of attempts or ctx is cancelled
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	start := time.Now()
	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = apperrors.IsRetryable
	}

	result := &RetryResult{}
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if !shouldRetry(err) {
			break
		}
		if attempt >= config.MaxAttempts {
			logger.WithFields(logging.Fields{
				"attempts": attempt,
				"error":    err.Error(),
			}).Error("Operation failed after max retry attempts")
			break
		}

		delay := calculateDelay(config, attempt)
		logger.WithFields(logging.Fields{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at MaxDelay
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// WithRetry runs fn under the default policy
func WithRetry(ctx context.Context, fn RetryFunc) error {
	return WithExponentialBackoff(ctx, DefaultRetryConfig(), fn).Err()
}
