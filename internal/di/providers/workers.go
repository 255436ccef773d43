package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/ratelimit"
	"github.com/ladderline/ladder-server/internal/scheduler"
	"github.com/ladderline/ladder-server/internal/service"
)

const (
	gcInterval       = 10 * time.Minute
	throttleIdleTTL  = 10 * time.Minute
	throttleInterval = 5 * time.Minute
)

// SchedulerHandle wraps the maintenance scheduler with shutdown capability.
type SchedulerHandle struct {
	*scheduler.Scheduler
	boards *service.LeaderboardService
	log    *logger.Logger
}

// Shutdown implements do.Shutdownable. It stops the jobs and writes a final
// snapshot so a clean restart loses nothing.
func (h *SchedulerHandle) Shutdown() error {
	if err := h.Scheduler.Shutdown(); err != nil {
		h.log.Warn("Scheduler shutdown failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	saved, err := h.boards.Snapshot(ctx)
	if err != nil {
		return err
	}
	h.log.Info("Final ranking snapshot written", "boards", saved)
	return nil
}

// ProvideScheduler provides the periodic maintenance jobs: ranking snapshots,
// rate limiter and throttle sweeps, and Badger value log GC.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	boards := do.MustInvoke[*service.LeaderboardService](i)
	limiter := do.MustInvoke[*ratelimit.Limiter](i)
	throttle := do.MustInvoke[*ratelimit.Throttle](i)

	s, err := scheduler.New(log.Component("scheduler"))
	if err != nil {
		return nil, err
	}

	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(ctx context.Context) error
	}{
		{"ranking-snapshot", cfg.Ranking.SnapshotInterval, func(ctx context.Context) error {
			_, err := boards.Snapshot(ctx)
			return err
		}},
		{"ratelimit-sweep", cfg.RateLimit.SweepInterval, func(context.Context) error {
			if n := limiter.Sweep(cfg.RateLimit.IdleTTL); n > 0 {
				log.Debug("Swept idle rate limit clients", "removed", n)
			}
			return nil
		}},
		{"throttle-sweep", throttleInterval, func(context.Context) error {
			throttle.Sweep(throttleIdleTTL)
			return nil
		}},
		{"badger-gc", gcInterval, func(context.Context) error {
			return storeHandle.RunGC()
		}},
	}

	for _, job := range jobs {
		if err := s.Every(job.name, job.interval, job.fn); err != nil {
			return nil, err
		}
	}

	s.Start()
	log.Info("Scheduler started", "jobs", s.Jobs())

	return &SchedulerHandle{Scheduler: s, boards: boards, log: log}, nil
}
