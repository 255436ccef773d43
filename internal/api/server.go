// Package api exposes the ranking, submission and admin operations over
// HTTP, plus the websocket and SSE streams of the broadcast hub.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ladderline/ladder-server/internal/hub"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	router   *chi.Mux
	api      huma.API
	services *Services
	infra    *Infrastructure
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(services *Services, infra *Infrastructure, logger *slog.Logger) *Server {
	if infra == nil {
		infra = &Infrastructure{}
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(infra.Metrics.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(infra.CORSOrigins),
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Link", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	router.Use(authMiddleware(infra.Verifier, logger))
	router.Use(RateLimitMiddleware(infra.Limiter, infra.Metrics, logger))

	humaConfig := huma.DefaultConfig("Ladder API", "1.0.0")
	humaConfig.Info.Description = "Competitive leaderboards with anti-cheat review and live rank updates"
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler(logger)

	s := &Server{
		router:   router,
		api:      api,
		services: services,
		infra:    infra,
		logger:   logger,
	}

	s.registerRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, used to render the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerLeaderboardRoutes()
	s.registerPlayerRoutes()
	s.registerSubmissionRoutes()
	s.registerAdminRoutes()
	s.registerStreamRoutes()
}

// registerStreamRoutes mounts the non-JSON endpoints directly on chi.
func (s *Server) registerStreamRoutes() {
	s.router.Handle("/metrics", s.infra.Metrics.Handler())

	if s.infra.WebSocket != nil {
		s.router.Handle("/ws", s.infra.WebSocket)
	}

	if s.infra.Hub != nil {
		stream := hub.NewSSEHandler(s.infra.Hub, func(r *http.Request) []string {
			return []string{chi.URLParam(r, "id")}
		}, Identify, s.logger)
		s.router.Get("/api/v1/leaderboards/{id}/stream", s.handleLeaderboardStream(stream))
	}
}

func corsOrigins(configured []string) []string {
	if len(configured) == 0 {
		return []string{"*"}
	}
	return configured
}
