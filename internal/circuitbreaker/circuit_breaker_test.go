package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func newTestBreaker(cfg *Config) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(cfg)
	clock := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(&Config{Name: "test", MaxFailures: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	// a success resets the streak
	require.NoError(t, cb.Execute(ctx, succeed))
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(&Config{Name: "test", MaxFailures: 1, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	require.Equal(t, StateOpen, cb.GetState())

	*clock = clock.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(&Config{Name: "test", MaxFailures: 1, Timeout: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, fail))
	*clock = clock.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())

	// the timeout restarts from the reopen
	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	errNotFound := errors.New("wallet not found")
	cb, _ := newTestBreaker(&Config{
		Name:        "test",
		MaxFailures: 1,
		Timeout:     time.Minute,
		IsFailure:   func(err error) bool { return !errors.Is(err, errNotFound) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func() error { return errNotFound }), errNotFound)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(&Config{Name: "test", MaxFailures: 1, Timeout: time.Hour})
	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(context.Background(), succeed))
}
