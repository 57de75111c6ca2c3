package api

import (
	"encoding/json"
	"net/http"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/api/handlers"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/api/middleware"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.APIKey))

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Fetch endpoints, one per capability
		r.Post("/search", h.Search)
		r.Post("/financial", h.Financial)
		r.Post("/news", h.News)

		// Introspection
		r.Get("/stats", h.Stats)
		r.Get("/providers", h.Providers)

		// Cost ledger
		r.Route("/costs", func(r chi.Router) {
			r.Get("/", h.Costs)
			r.Post("/reset", h.ResetCosts)
		})

		// Cache maintenance
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.CacheStats)
			r.Post("/purge", h.PurgeCache)
		})
	})

	return r
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "research-fetch",
		})
	}
}
