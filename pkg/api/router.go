// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/api/handlers"
	"github.com/engramd/engramd/pkg/api/middleware"
	"github.com/engramd/engramd/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Memory handles memory save, search, and list endpoints
	Memory *handlers.MemoryHandler

	// Context handles the combined retrieve-and-inject endpoint
	Context *handlers.ContextHandler

	// Pattern exposes the pattern detector
	Pattern *handlers.PatternHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams memory and pattern events
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if handlers.Memory != nil {
			r.Route("/memories", func(r chi.Router) {
				r.Post("/", handlers.Memory.Save)
				r.Get("/", handlers.Memory.List)
				r.Post("/search", handlers.Memory.Search)
			})
		}

		if handlers.Context != nil {
			r.Post("/context", handlers.Context.Inject)
		}

		if handlers.Pattern != nil {
			r.Route("/patterns", func(r chi.Router) {
				r.Get("/", handlers.Pattern.List)
				r.Post("/observe", handlers.Pattern.Observe)
				r.Post("/{id}/applications", handlers.Pattern.RecordApplication)
			})
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}

	// Websocket event stream
	if handlers.WebSocket != nil {
		r.Get("/ws/events", handlers.WebSocket.ServeHTTP)
	}
}
