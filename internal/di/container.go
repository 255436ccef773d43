// Package di provides dependency injection configuration for the ladder server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/anticheat"
	"github.com/ladderline/ladder-server/internal/auth"
	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/di/providers"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ranking"
	"github.com/ladderline/ladder-server/internal/ratelimit"
	"github.com/ladderline/ladder-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideAuditLog)
	do.Provide(injector, providers.ProvidePlayerIndex)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Ranking and realtime
	do.Provide(injector, providers.ProvideRankingRegistry)
	do.Provide(injector, providers.ProvideEvaluator)
	do.Provide(injector, providers.ProvideHub)
	do.Provide(injector, providers.ProvideMessageThrottle)
	do.Provide(injector, providers.ProvideRateLimiter)

	// Business services
	do.Provide(injector, providers.ProvideLeaderboardService)
	do.Provide(injector, providers.ProvideSubmissionService)
	do.Provide(injector, providers.ProvideAuditService)

	// Workers
	do.Provide(injector, providers.ProvideScheduler)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.AuditLogHandle](injector)
	_ = do.MustInvoke[*providers.PlayerIndexHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*ranking.Registry](injector)
	_ = do.MustInvoke[*anticheat.Evaluator](injector)
	_ = do.MustInvoke[*providers.HubHandle](injector)
	_ = do.MustInvoke[*ratelimit.Throttle](injector)
	_ = do.MustInvoke[*ratelimit.Limiter](injector)

	// Business services
	_ = do.MustInvoke[*service.LeaderboardService](injector)
	_ = do.MustInvoke[*service.SubmissionService](injector)
	_ = do.MustInvoke[*service.AuditService](injector)

	// Workers
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
