package adapter

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DataProvider is an RPC endpoint pair with failover and health tracking
type DataProvider interface {
	// GetPrimaryURL returns the primary RPC endpoint URL
	GetPrimaryURL() (string, error)

	// GetCurrentURL returns the currently active RPC endpoint URL
	GetCurrentURL() (string, error)

	// Failover switches between primary and secondary.
	// Returns error if there is nothing to switch to.
	Failover() error

	// RecordSuccess records a successful request for health tracking
	RecordSuccess(duration time.Duration)

	// RecordFailure records a failed request for health tracking
	RecordFailure(err error)

	// IsHealthy returns true if the provider is considered healthy
	IsHealthy() bool

	// Reset returns to the primary endpoint
	Reset()
}

// ProviderHealth represents the health status of a data provider
type ProviderHealth struct {
	CurrentURL       string        `json:"currentUrl"`
	TotalRequests    int64         `json:"totalRequests"`
	FailedReqs       int64         `json:"failedRequests"`
	AverageLatency   time.Duration `json:"averageLatency"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	IsHealthy        bool          `json:"isHealthy"`
}

// RPCProvider implements DataProvider for a primary and optional secondary URL
type RPCProvider struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	totalRequests    int64
	failedReqs       int64
	totalLatency     time.Duration
	consecutiveFails int

	maxConsecutiveFails int
}

// NewRPCProvider creates a new RPC provider with primary and optional secondary URLs
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &RPCProvider{
		primaryURL:          primaryURL,
		secondaryURL:        secondaryURL,
		currentURL:          primaryURL,
		maxConsecutiveFails: 3,
	}, nil
}

// GetPrimaryURL returns the primary RPC endpoint URL
func (p *RPCProvider) GetPrimaryURL() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.primaryURL, nil
}

// GetCurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) GetCurrentURL() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.currentURL == "" {
		return "", fmt.Errorf("no active URL configured")
	}
	return p.currentURL, nil
}

// Failover switches to the other endpoint
func (p *RPCProvider) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.secondaryURL == "" {
		return fmt.Errorf("no secondary provider configured")
	}
	if p.currentURL == p.primaryURL {
		p.currentURL = p.secondaryURL
	} else {
		p.currentURL = p.primaryURL
	}
	p.consecutiveFails = 0
	return nil
}

// RecordSuccess records a successful request for health tracking
func (p *RPCProvider) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.totalLatency += duration
	p.consecutiveFails = 0
}

// RecordFailure records a failed request for health tracking
func (p *RPCProvider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.failedReqs++
	p.consecutiveFails++
}

// GetHealth returns a point-in-time health report
func (p *RPCProvider) GetHealth() *ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var avg time.Duration
	if ok := p.totalRequests - p.failedReqs; ok > 0 {
		avg = p.totalLatency / time.Duration(ok)
	}
	return &ProviderHealth{
		CurrentURL:       p.currentURL,
		TotalRequests:    p.totalRequests,
		FailedReqs:       p.failedReqs,
		AverageLatency:   avg,
		ConsecutiveFails: p.consecutiveFails,
		IsHealthy:        p.consecutiveFails < p.maxConsecutiveFails,
	}
}

// IsHealthy returns true if the provider is considered healthy
func (p *RPCProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consecutiveFails < p.maxConsecutiveFails
}

// Reset returns to the primary endpoint
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentURL = p.primaryURL
	p.consecutiveFails = 0
}

// shouldFailover determines if an error warrants switching endpoints
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "too many requests", "429",
		"timeout", "deadline exceeded",
		"connection refused", "connection reset", "no such host",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
