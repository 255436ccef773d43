package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ladderline/ladder-server/internal/http/response"
	"github.com/ladderline/ladder-server/internal/metrics"
	"github.com/ladderline/ladder-server/internal/ratelimit"
)

// rateLimited reports whether a path is subject to the tiered limiter.
func rateLimited(path string) bool {
	return path == "/ws" || strings.HasPrefix(path, "/api/v1/")
}

// RateLimitMiddleware charges every API and websocket request to its client.
// Authenticated requests are keyed by user ID, anonymous ones by client IP.
// Runs after authMiddleware so the principal's tier is known.
func RateLimitMiddleware(limiter *ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rateLimited(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			p := PrincipalFrom(r.Context())
			userID := ""
			if p != nil {
				userID = p.UserID
			}
			clientID := ratelimit.ResolveClientID(userID,
				r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr)
			tier := p.RateTier()

			d := limiter.CheckAndIncrement(clientID, tier)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				m.RateLimitDecision(string(tier), "rejected")
				logger.Warn("Rate limit exceeded",
					"client_id", clientID,
					"tier", tier,
					"reason", d.Reason,
					"path", r.URL.Path,
				)
				response.Error(w, d.Err(), logger)
				return
			}

			m.RateLimitDecision(string(tier), "allowed")
			next.ServeHTTP(w, r)
		})
	}
}
