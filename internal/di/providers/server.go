package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/ladderline/ladder-server/internal/api"
	"github.com/ladderline/ladder-server/internal/auth"
	"github.com/ladderline/ladder-server/internal/config"
	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/logger"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ratelimit"
	"github.com/ladderline/ladder-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	auditHandle := do.MustInvoke[*AuditLogHandle](i)
	indexHandle := do.MustInvoke[*PlayerIndexHandle](i)
	hubHandle := do.MustInvoke[*HubHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	limiter := do.MustInvoke[*ratelimit.Limiter](i)
	throttle := do.MustInvoke[*ratelimit.Throttle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	services := &api.Services{
		Leaderboards: do.MustInvoke[*service.LeaderboardService](i),
		Submissions:  do.MustInvoke[*service.SubmissionService](i),
		Audit:        do.MustInvoke[*service.AuditService](i),
	}

	wsLog := log.Component("ws")
	protocol := hub.NewProtocol(hubHandle.Hub, tokenService, throttle, wsLog)
	ws := hub.NewWSHandler(hubHandle.Hub, protocol, api.Identify, cfg.Server.CORSOrigins, wsLog)

	handler := api.NewServer(services, &api.Infrastructure{
		Store:       storeHandle.Store,
		AuditLog:    auditHandle.Store,
		Directory:   indexHandle.PlayerIndex,
		Hub:         hubHandle.Hub,
		WebSocket:   ws,
		Verifier:    tokenService,
		Limiter:     limiter,
		Metrics:     m,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, log.Component("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
