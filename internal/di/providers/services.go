package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/anticheat"
	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ranking"
	"github.com/ladderline/ladder-server/internal/service"
	"github.com/ladderline/ladder-server/internal/validation"
)

// restoreTimeout bounds the startup restore of ranking snapshots.
const restoreTimeout = 2 * time.Minute

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

// ProvideValidator provides the shared request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideRankingRegistry provides the in-memory ranking boards.
func ProvideRankingRegistry(i do.Injector) (*ranking.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return ranking.NewRegistry(ranking.Limits{
		DefaultPageSize:  cfg.Ranking.DefaultPageSize,
		MaxPageSize:      cfg.Ranking.MaxPageSize,
		MaxTopN:          cfg.Ranking.MaxTopN,
		MaxContextWindow: cfg.Ranking.MaxContextWindow,
	}), nil
}

// ProvideEvaluator provides the anti-cheat evaluator.
func ProvideEvaluator(i do.Injector) (*anticheat.Evaluator, error) {
	cfg := do.MustInvoke[*config.Config](i)

	var key []byte
	if cfg.AntiCheat.ChecksumKey != "" {
		key = []byte(cfg.AntiCheat.ChecksumKey)
	}

	return anticheat.New(anticheat.Config{
		VarianceMultiplier: cfg.AntiCheat.VarianceMultiplier,
		HistoryWindow:      cfg.AntiCheat.HistoryWindow,
		MinHistory:         cfg.AntiCheat.MinHistory,
		MinSubmitInterval:  cfg.AntiCheat.MinSubmitInterval,
		ChecksumKey:        key,
		RequireChecksum:    cfg.AntiCheat.RequireChecksum,
	}), nil
}

// ProvideLeaderboardService provides the leaderboard service. It creates the
// configured default leaderboards and restores every board from its last
// snapshot before the server accepts traffic.
func ProvideLeaderboardService(i do.Injector) (*service.LeaderboardService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	auditHandle := do.MustInvoke[*AuditLogHandle](i)
	indexHandle := do.MustInvoke[*PlayerIndexHandle](i)
	hubHandle := do.MustInvoke[*HubHandle](i)
	registry := do.MustInvoke[*ranking.Registry](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	v := do.MustInvoke[*validation.Validator](i)

	svc := service.NewLeaderboardService(
		storeHandle.Store,
		registry,
		indexHandle.PlayerIndex,
		hubHandle.Hub,
		auditHandle.Store,
		m,
		v,
		log.Component("leaderboards"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	if err := svc.EnsureDefaults(ctx, cfg.Ranking.DefaultLeaderboards); err != nil {
		return nil, err
	}
	if err := svc.Restore(ctx); err != nil {
		return nil, err
	}

	log.Info("Leaderboards restored", "boards", len(registry.IDs()))

	return svc, nil
}

// ProvideSubmissionService provides the score submission pipeline.
func ProvideSubmissionService(i do.Injector) (*service.SubmissionService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	auditHandle := do.MustInvoke[*AuditLogHandle](i)
	boards := do.MustInvoke[*service.LeaderboardService](i)
	evaluator := do.MustInvoke[*anticheat.Evaluator](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	v := do.MustInvoke[*validation.Validator](i)

	return service.NewSubmissionService(
		storeHandle.Store,
		boards,
		evaluator,
		auditHandle.Store,
		m,
		v,
		service.SubmissionConfig{
			MaxBatchSize:     cfg.Submission.MaxBatchSize,
			DisputeReasonMin: cfg.Submission.DisputeReasonMin,
			DisputeReasonMax: cfg.Submission.DisputeReasonMax,
		},
		log.Component("submissions"),
	), nil
}

// ProvideAuditService provides the audit log reader.
func ProvideAuditService(i do.Injector) (*service.AuditService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	auditHandle := do.MustInvoke[*AuditLogHandle](i)

	return service.NewAuditService(auditHandle.Store, log.Component("audit")), nil
}
