package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-aggregator/internal/circuitbreaker"
	apperrors "github.com/portfolio-aggregator/internal/errors"
	"github.com/portfolio-aggregator/internal/ratelimit"
	"github.com/portfolio-aggregator/internal/retry"
)

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestJSONClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"thing","count":3}`))
	}))
	defer server.Close()

	client := NewJSONClient("test", server.URL+"/v1/", 0, WithBearerToken("secret"), WithRetryConfig(fastRetry()))
	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	err := client.GetJSON(context.Background(), "/things", url.Values{"q": []string{"abc"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "thing", out.Name)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "test", client.Provider())
}

func TestJSONClient_RetriesOn429(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewJSONClient("test", server.URL, 0, WithRetryConfig(fastRetry()))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.GetJSON(context.Background(), "/", nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestJSONClient_GivesUpAfterRepeated429(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewJSONClient("test", server.URL, 0, WithRetryConfig(fastRetry()))
	var out map[string]interface{}
	err := client.GetJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestJSONClient_ServerErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewJSONClient("test", server.URL, 0, WithRetryConfig(fastRetry()))
	var out map[string]interface{}
	err := client.GetJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)

	httpErr, ok := err.(*HTTPError)
	require.True(t, ok, "expected *HTTPError, got %T", err)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, "boom", httpErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestJSONClient_CircuitBreaker(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewJSONClient("test", server.URL, 0,
		WithRetryConfig(fastRetry()),
		WithCircuitBreaker(&circuitbreaker.Config{Name: "test", MaxFailures: 2, Timeout: time.Hour}),
	)
	var out map[string]interface{}
	ctx := context.Background()

	// 404s are about the request, not the provider
	for i := 0; i < 3; i++ {
		require.Error(t, client.GetJSON(ctx, "/missing", nil, &out))
	}
	for i := 0; i < 2; i++ {
		require.Error(t, client.GetJSON(ctx, "/", nil, &out))
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))

	err := client.GetJSON(ctx, "/", nil, &out)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

type fakeBudget struct {
	remaining int
	err       error
}

func (b *fakeBudget) TryConsume(ctx context.Context, n int) (bool, time.Duration, error) {
	if b.err != nil {
		return false, 0, b.err
	}
	if b.remaining < n {
		return false, time.Hour, nil
	}
	b.remaining -= n
	return true, 0, nil
}

func TestJSONClient_CallBudget(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	budget := &fakeBudget{remaining: 1}
	client := NewJSONClient("test", server.URL, 0, WithRetryConfig(fastRetry()), WithCallBudget(budget))
	var out map[string]interface{}
	ctx := context.Background()

	require.NoError(t, client.GetJSON(ctx, "/", nil, &out))
	err := client.GetJSON(ctx, "/", nil, &out)
	assert.ErrorIs(t, err, ratelimit.ErrBudgetExhausted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// a broken budget store lets calls through
	budget.err = assert.AnError
	require.NoError(t, client.GetJSON(ctx, "/", nil, &out))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestJSONClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := NewJSONClient("test", server.URL, 0, WithRetryConfig(fastRetry()))
	var out map[string]interface{}
	err := client.GetJSON(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryAdapter, apperrors.Categorize(err).Category)
}

func TestJSONDecimal(t *testing.T) {
	var v struct {
		A jsonDecimal `json:"a"`
		B jsonDecimal `json:"b"`
		C jsonDecimal `json:"c"`
		D jsonDecimal `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.5","b":2.25,"c":"","d":null}`), &v))
	assert.Equal(t, 1.5, float64(v.A))
	assert.Equal(t, 2.25, float64(v.B))
	assert.Nil(t, v.C.Ptr())
	assert.Nil(t, v.D.Ptr())
	require.NotNil(t, v.A.Ptr())
	assert.Equal(t, 1.5, *v.A.Ptr())
}
