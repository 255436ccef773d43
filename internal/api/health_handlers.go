package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ladderline/ladder-server/internal/store"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"database":  s.checkDatabase(ctx),
		"audit_log": s.checkAuditLog(),
		"search":    s.checkSearchIndex(),
		"hub":       s.checkHub(),
	}

	overall := statusHealthy
	for name, c := range components {
		switch {
		case c.Status == statusUnhealthy && name == "database":
			overall = statusUnhealthy
		case c.Status != statusHealthy && overall == statusHealthy:
			overall = statusDegraded
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkDatabase verifies BadgerDB is accessible.
func (s *Server) checkDatabase(ctx context.Context) ComponentHealth {
	if s.infra.Store == nil {
		return ComponentHealth{Status: statusDegraded, Message: "database not configured"}
	}

	start := time.Now()

	// A missing leaderboard still proves the database answers.
	_, err := s.infra.Store.GetLeaderboard(ctx, "health-probe")
	latency := time.Since(start)

	if err != nil && !store.IsNotFound(err) {
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "database read failed",
		}
	}

	return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
}

// checkAuditLog verifies the SQLite audit log answers. Audit writes are best
// effort, so a failure only degrades the server.
func (s *Server) checkAuditLog() ComponentHealth {
	if s.infra.AuditLog == nil {
		return ComponentHealth{Status: statusDegraded, Message: "audit log not configured"}
	}

	start := time.Now()
	err := s.infra.AuditLog.Ping()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "audit log unreachable",
		}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
}

// checkSearchIndex verifies the Bleve player directory is accessible.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.infra.Directory == nil {
		return ComponentHealth{Status: statusDegraded, Message: "player directory not configured"}
	}

	start := time.Now()
	docCount, err := s.infra.Directory.DocumentCount()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  statusUnhealthy,
			Latency: latency.String(),
			Message: "player directory unreachable",
		}
	}

	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
		Message: fmt.Sprintf("%d indexed players", docCount),
	}
}

// checkHub reports the broadcast hub's connection count.
func (s *Server) checkHub() ComponentHealth {
	if s.infra.Hub == nil {
		return ComponentHealth{Status: statusDegraded, Message: "broadcast hub not configured"}
	}

	return ComponentHealth{
		Status:  statusHealthy,
		Message: formatConnections(s.infra.Hub.ConnectionCount()),
	}
}

func formatConnections(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return fmt.Sprintf("%d connected clients", count)
	}
}
