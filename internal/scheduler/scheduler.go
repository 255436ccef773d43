// Package scheduler runs the service's periodic maintenance jobs on gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler owns a gocron scheduler and logs every job run.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *slog.Logger
}

// New creates a stopped Scheduler.
func New(logger *slog.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{cron: cron, logger: logger}, nil
}

// Every registers fn to run once per interval. A run that is still going when
// the next one is due causes that next one to be skipped. Each run gets a
// context bounded by the interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if fn == nil {
		return errors.New("job " + name + ": nil task")
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			start := time.Now()
			if err := fn(ctx); err != nil {
				s.logger.Error("scheduled job failed",
					slog.String("job", name),
					slog.String("error", err.Error()))
				return
			}
			s.logger.Debug("scheduled job finished",
				slog.String("job", name),
				slog.Duration("took", time.Since(start)))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}

	s.logger.Info("scheduled job registered", slog.String("job", name), slog.Duration("interval", interval))
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	jobs := s.cron.Jobs()
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name())
	}
	return out
}

// Start begins running jobs. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}
