package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/portfolio-aggregator/internal/errors"
)

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit     rate.Limit
	burstSize int
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per client
// with the given burst
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		limit:     rate.Limit(float64(requestsPerMinute) / 60),
		burstSize: burst,
	}
}

// getLimiter returns the limiter for a client key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// another goroutine may have created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burstSize)
	rl.limiters[key] = limiter
	return limiter
}

// clientKey identifies a caller by X-Client-ID, falling back to the remote IP
func clientKey(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getLimiter(clientKey(r))
			if !limiter.Allow() {
				retryAfter := 1
				if rl.limit > 0 {
					retryAfter = int(1/float64(rl.limit)) + 1
				}
				respondCategorized(w, apperrors.NewRateLimitError(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
