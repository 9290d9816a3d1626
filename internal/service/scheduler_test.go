package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct{ calls int }

func (c *countingRunner) Run(ctx context.Context) (*RunResult, error) {
	c.calls++
	return &RunResult{}, nil
}

func TestNewScheduler_InvalidTime(t *testing.T) {
	_, err := NewScheduler(&countingRunner{}, "25:99")
	assert.Error(t, err)
}

func TestSchedulerNextRun(t *testing.T) {
	s, err := NewScheduler(&countingRunner{}, "00:00")
	require.NoError(t, err)

	now := time.Date(2024, 3, 31, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), s.NextRun(now))

	// exactly on the boundary runs tomorrow
	midnight := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), s.NextRun(midnight))

	s, err = NewScheduler(&countingRunner{}, "06:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 6, 15, 0, 0, time.UTC), s.NextRun(time.Date(2024, 3, 31, 1, 0, 0, 0, time.UTC)))

	// non-UTC input is converted first
	ny := time.FixedZone("EST", -5*3600)
	assert.Equal(t, time.Date(2024, 4, 1, 6, 15, 0, 0, time.UTC), s.NextRun(time.Date(2024, 3, 31, 22, 0, 0, 0, ny)))
}

func TestSchedulerStartStop(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewScheduler(runner, "00:00")
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()), "second start is rejected")

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Error(t, s.Stop())

	// restartable after stop
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
