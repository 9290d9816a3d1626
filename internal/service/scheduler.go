package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-aggregator/internal/logging"
)

// Runner executes one snapshot run
type Runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// Scheduler runs the snapshot pipeline once a day at a fixed UTC time
type Scheduler struct {
	runner   Runner
	hour     int
	minute   int
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a scheduler firing daily at runAt ("HH:MM", UTC)
func NewScheduler(runner Runner, runAt string) (*Scheduler, error) {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return nil, fmt.Errorf("invalid run time %q: %w", runAt, err)
	}
	return &Scheduler{
		runner: runner,
		hour:   t.Hour(),
		minute: t.Minute(),
	}, nil
}

// NextRun returns the first scheduled time strictly after now
func (s *Scheduler) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start begins the daily schedule
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("snapshot scheduler is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	logger := logging.FromContext(ctx)
	next := s.NextRun(time.Now())
	wait := time.Until(next)
	logger.WithFields(logging.Fields{
		"next_run": next.Format(time.RFC3339),
		"in":       wait.Round(time.Second).String(),
	}).Info("Snapshot scheduler starting")

	stop, done := s.stopChan, s.done
	go func() {
		defer close(done)

		select {
		case <-time.After(wait):
			s.runOnce(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-stop:
				logger.Info("Snapshot scheduler stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("snapshot scheduler is not running")
	}
	close(s.stopChan)
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runOnce(ctx context.Context) {
	logger := logging.FromContext(ctx)
	if _, err := s.runner.Run(ctx); err != nil {
		logger.WithError(err).Error("Scheduled snapshot run failed")
	}
}
