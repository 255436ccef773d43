package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/domain"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ratelimit"
)

// HubHandle wraps the broadcast hub with its context for lifecycle management.
type HubHandle struct {
	*hub.Hub
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *HubHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Hub.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideHub provides the realtime broadcast hub. Subscriptions are mirrored
// into Badger so operators can inspect them.
func ProvideHub(i do.Injector) (*HubHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	h := hub.New(hub.Config{
		MaxSubscriptions:  cfg.Hub.MaxSubscriptions,
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
		EventBuffer:       cfg.Hub.EventBuffer,
		PublishTimeout:    cfg.Hub.PublishTimeout,
	}, storeHandle.Store, m, log.Component("hub"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go h.Start(ctx)

	log.Info("Broadcast hub started",
		"max_subscriptions", cfg.Hub.MaxSubscriptions,
		"heartbeat_interval", cfg.Hub.HeartbeatInterval,
	)

	return &HubHandle{Hub: h, cancel: cancel}, nil
}

// ProvideMessageThrottle provides the per-connection websocket message budget.
func ProvideMessageThrottle(i do.Injector) (*ratelimit.Throttle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return ratelimit.NewThrottle(cfg.Hub.MessageRate, cfg.Hub.MessageBurst), nil
}

// ProvideRateLimiter provides the tiered request limiter.
func ProvideRateLimiter(i do.Injector) (*ratelimit.Limiter, error) {
	cfg := do.MustInvoke[*config.Config](i)

	budget := func(b config.Budget) ratelimit.Budget {
		return ratelimit.Budget{PerMinute: b.PerMinute, PerHour: b.PerHour, PerDay: b.PerDay}
	}

	return ratelimit.New(ratelimit.Config{
		Budgets: map[domain.ClientTier]ratelimit.Budget{
			domain.ClientAnonymous:     budget(cfg.RateLimit.Anonymous),
			domain.ClientAuthenticated: budget(cfg.RateLimit.Authenticated),
			domain.ClientPremium:       budget(cfg.RateLimit.Premium),
		},
		BurstMultiplier: cfg.RateLimit.BurstMultiplier,
	}), nil
}
