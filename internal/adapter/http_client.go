package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/portfolio-aggregator/internal/circuitbreaker"
	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/logging"
	"github.com/portfolio-aggregator/internal/ratelimit"
	"github.com/portfolio-aggregator/internal/retry"
)

// HTTPError is a non-2xx, non-429 response from a provider
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// JSONClient issues paced GET requests against a JSON API. HTTP 429 is
// retried with exponential backoff; any other failure is returned at once.
type JSONClient struct {
	provider string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	retry    *retry.RetryConfig
	headers  map[string]string
	breaker  *circuitbreaker.CircuitBreaker
	budget   CallBudget
}

// CallBudget meters calls against a provider quota shared across processes
type CallBudget interface {
	TryConsume(ctx context.Context, n int) (bool, time.Duration, error)
}

// ClientOption customizes a JSONClient
type ClientOption func(*JSONClient)

// WithHeader sets a header sent on every request
func WithHeader(key, value string) ClientOption {
	return func(c *JSONClient) { c.headers[key] = value }
}

// WithBearerToken sets an Authorization: Bearer header when token is non-empty
func WithBearerToken(token string) ClientOption {
	return func(c *JSONClient) {
		if token != "" {
			c.headers["Authorization"] = "Bearer " + token
		}
	}
}

// WithRetryConfig replaces the default 429 backoff policy
func WithRetryConfig(cfg *retry.RetryConfig) ClientOption {
	return func(c *JSONClient) { c.retry = cfg }
}

// WithCircuitBreaker stops calling the provider after repeated upstream
// failures. Client errors (4xx) and malformed bodies do not count.
func WithCircuitBreaker(cfg *circuitbreaker.Config) ClientOption {
	return func(c *JSONClient) {
		cfg.IsFailure = isUpstreamFailure
		c.breaker = circuitbreaker.NewCircuitBreaker(cfg)
	}
}

// WithCallBudget charges every outbound request, retries included, to b
func WithCallBudget(b CallBudget) ClientOption {
	return func(c *JSONClient) { c.budget = b }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *JSONClient) { c.client = hc }
}

// NewJSONClient creates a client for provider at baseURL allowing
// requestsPerSecond outbound requests (0 disables pacing)
func NewJSONClient(provider, baseURL string, requestsPerSecond float64, opts ...ClientOption) *JSONClient {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	c := &JSONClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		retry:    retry.DefaultRetryConfig(),
		headers:  map[string]string{"Accept": "application/json"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider name used in errors and logs
func (c *JSONClient) Provider() string {
	return c.provider
}

// GetJSON requests baseURL+path with query and decodes the body into out
func (c *JSONClient) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body []byte
	fetch := func() error {
		result := retry.WithExponentialBackoff(ctx, c.retry, func(ctx context.Context, attempt int) error {
			var err error
			body, err = c.do(ctx, endpoint)
			return err
		})
		if !result.Success {
			return result.LastError
		}
		return nil
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, fetch)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s unavailable: %w", c.provider, err)
		}
	} else {
		err = fetch()
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewMalformedResponseError(c.provider, err.Error())
	}
	return nil
}

func (c *JSONClient) do(ctx context.Context, endpoint string) ([]byte, error) {
	if c.budget != nil {
		ok, resetsAfter, err := c.budget.TryConsume(ctx, 1)
		switch {
		case err != nil:
			// an unreachable budget store does not block the snapshot
			logging.FromContext(ctx).WithError(err).WithField("provider", c.provider).Warn("Call budget unavailable")
		case !ok:
			return nil, fmt.Errorf("%s: %w, resets in %s", c.provider, ratelimit.ErrBudgetExhausted, resetsAfter.Round(time.Second))
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.provider, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewProviderRateLimitError(c.provider)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &HTTPError{Provider: c.provider, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// isUpstreamFailure reports whether err says the provider itself is unhealthy
func isUpstreamFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ratelimit.ErrBudgetExhausted) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
