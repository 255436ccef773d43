package api

import (
	"net/http"

	"github.com/ladderline/ladder-server/internal/hub"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ratelimit"
	"github.com/ladderline/ladder-server/internal/search"
	"github.com/ladderline/ladder-server/internal/service"
	"github.com/ladderline/ladder-server/internal/store"
	"github.com/ladderline/ladder-server/internal/store/sqlite"
)

// Services groups the business services used by the API server.
type Services struct {
	Leaderboards *service.LeaderboardService
	Submissions  *service.SubmissionService
	Audit        *service.AuditService
}

// Infrastructure groups the components the server routes to or reports on.
// Any field may be nil in tests; the matching routes and health checks
// degrade instead of failing.
type Infrastructure struct {
	Store     *store.Store
	AuditLog  *sqlite.Store
	Directory *search.PlayerIndex
	Hub       *hub.Hub
	WebSocket http.Handler // mounted at /ws
	Verifier  TokenVerifier
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics

	CORSOrigins []string
}
