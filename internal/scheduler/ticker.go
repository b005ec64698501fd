// Package scheduler triggers the reminder job on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Job is satisfied by service.ReminderService.
type Job interface {
	RunDue(ctx context.Context) (int, error)
}

// Ticker runs Job every interval until the context ends.
type Ticker struct {
	job          Job
	interval     time.Duration
	runOnStartup bool
	skip         error
	logger       *zap.Logger
}

func NewTicker(job Job, interval time.Duration, logger *zap.Logger) *Ticker {
	return &Ticker{
		job:      job,
		interval: interval,
		logger:   logger,
	}
}

// WithRunOnStartup runs the job once before the first tick.
func (t *Ticker) WithRunOnStartup(enabled bool) *Ticker {
	t.runOnStartup = enabled
	return t
}

// WithSkipError marks an error as an expected skip, logged at info level.
func (t *Ticker) WithSkipError(err error) *Ticker {
	t.skip = err
	return t
}

// Start blocks until ctx is done.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info("Starting reminder scheduler",
		zap.Duration("interval", t.interval),
		zap.Bool("run_on_startup", t.runOnStartup),
	)

	if t.runOnStartup {
		t.run(ctx)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Reminder scheduler stopped")
			return
		case <-ticker.C:
			t.run(ctx)
		}
	}
}

func (t *Ticker) run(ctx context.Context) {
	sent, err := t.job.RunDue(ctx)
	switch {
	case err == nil:
		t.logger.Info("Scheduled reminder run finished", zap.Int("sent", sent))
	case t.skip != nil && errors.Is(err, t.skip):
		t.logger.Info("Scheduled reminder run skipped", zap.Error(err))
	default:
		t.logger.Error("Scheduled reminder run failed", zap.Error(err))
	}
}
