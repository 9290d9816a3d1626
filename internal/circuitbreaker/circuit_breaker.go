// Package circuitbreaker stops calling a data provider that keeps failing,
// so one dead upstream does not stall every wallet behind it.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/portfolio-aggregator/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the provider has recovered
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open trial budget is spent
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before a trial call
	Timeout time.Duration
	// HalfOpenMaxCalls successful trials close the circuit again
	HalfOpenMaxCalls int
	// IsFailure classifies an error; nil counts every error. Errors that
	// are not failures (a 404 for one wallet) leave the counters untouched.
	IsFailure func(err error) bool
}

// DefaultConfig returns the provider circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		Timeout:          2 * time.Minute,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	config *Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	halfOpenSuccess  int
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 1
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		config:          config,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute executes fn with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(ctx); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(ctx, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		logging.FromContext(ctx).WithField("circuitBreaker", cb.config.Name).Info("Circuit breaker transitioning to half-open")
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && (cb.config.IsFailure == nil || cb.config.IsFailure(err))
	logger := logging.FromContext(ctx).WithField("circuitBreaker", cb.config.Name)

	if !failed {
		if err == nil {
			cb.consecutiveFails = 0
		}
		if cb.state == StateHalfOpen {
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.config.HalfOpenMaxCalls {
				cb.setState(StateClosed)
				logger.Info("Circuit breaker closed after successful recovery")
			}
		}
		return
	}

	cb.consecutiveFails++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.config.MaxFailures {
			cb.setState(StateOpen)
			logger.WithError(err).WithField("consecutiveFails", cb.consecutiveFails).Warn("Circuit breaker opened due to failures")
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		logger.WithError(err).Warn("Circuit breaker reopened after failure in half-open state")
	}
}

// setState changes state and resets the per-state counters
func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = cb.now()
	cb.halfOpenCalls = 0
	cb.halfOpenSuccess = 0
	if state == StateClosed {
		cb.consecutiveFails = 0
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
