// Package server provides the public entry point for initializing the
// research fetch service.
//
// This package exists in pkg/ (not internal/) so the service can be
// embedded in a larger binary: wire it once, mount srv.Handler on any mux,
// and call srv.Fetch directly for in-process fetches that skip HTTP.
//
// Usage (standalone):
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
//
// Usage (embedded):
//
//	srv, err := server.New(ctx)
//	resp, err := srv.Fetch.Fetch(ctx, models.FetchRequest{
//		Query:      "acme earnings",
//		Capability: models.CapabilitySearch,
//	})
package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"net/http"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/api"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/api/handlers"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/breaker"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/cache"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/config"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/fetch"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/ledger"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/notify"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/providers"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/quota"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/registry"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/telemetry"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized research fetch service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Fetch is the escalation router, exposed for in-process use.
	Fetch contracts.FetchService

	// Config is the resolved configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	stopJanitor context.CancelFunc
	costs       *ledger.Ledger
	store       *cache.Store
	flushTraces func(context.Context) error
}

// New initializes the service from environment configuration. This is the
// primary entry point for main.go and for embedders alike.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
// The context bounds the cache janitor: cancel it (or call Close) to stop
// background sweeps.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	// Initialize telemetry first so component startup is traceable
	flush, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	alerts := notify.NewService(cfg.Alerts)

	store, err := cache.Open(cache.Options{
		Dir:        cfg.Cache.Dir,
		TTL:        cfg.Cache.TTL,
		MemoryTTL:  cfg.Cache.MemoryTTL,
		MemorySize: cfg.Cache.MemorySize,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	log.Info().Str("dir", cfg.Cache.Dir).Msg("✅ Result cache opened")

	costs := ledger.New(ledger.Options{
		WarnUSD:      cfg.Budget.WarnUSD,
		MaxUSD:       cfg.Budget.MaxUSD,
		SnapshotPath: filepath.Join(cfg.Cache.Dir, "ledger.json"),
	}, alerts)
	log.Info().
		Float64("warn_usd", cfg.Budget.WarnUSD).
		Float64("max_usd", cfg.Budget.MaxUSD).
		Msg("✅ Cost ledger initialized")

	breakers := breaker.NewGroup(breaker.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		BaseCooldown:     cfg.Breaker.BaseCooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
	}, alerts)
	quotas := quota.NewManager()

	reg := registry.New()
	seedProviders(cfg, reg, quotas)

	router := fetch.NewRouter(reg, breakers, quotas, store, costs, fetch.Options{
		DefaultTier:    models.ParseTier(cfg.Router.DefaultTier),
		DefaultCount:   cfg.Router.ResultCount,
		MinResults:     cfg.Router.MinResults,
		AdapterTimeout: cfg.Router.AdapterTimeout,
	})
	log.Info().
		Str("default_tier", cfg.Router.DefaultTier).
		Int("min_results", cfg.Router.MinResults).
		Msg("✅ Fetch router initialized")

	// Build handlers + API router
	h := handlers.New(router, reg, store, costs)
	apiRouter := api.NewRouter(cfg, h)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	go store.StartJanitor(janitorCtx, cfg.Cache.CleanupInterval)

	return &Server{
		Handler:     apiRouter,
		Fetch:       router,
		Config:      cfg,
		Port:        cfg.Port,
		stopJanitor: stopJanitor,
		costs:       costs,
		store:       store,
		flushTraces: flush,
	}, nil
}

// Close stops the cache janitor, persists the final ledger snapshot,
// closes the persistent cache, and flushes telemetry.
func (s *Server) Close() error {
	s.stopJanitor()
	if err := s.costs.Close(); err != nil {
		log.Warn().Err(err).Msg("Ledger close failed")
	}
	if err := s.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Cache close failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.flushTraces(ctx)
}

// seedProviders registers every enabled adapter together with its
// descriptor and quota gate. Key-gated adapters register even without a
// key so /providers lists them; they report unavailable until the key
// arrives, and the router skips unavailable providers for free.
func seedProviders(cfg *config.Config, reg *registry.Registry, quotas *quota.Manager) {
	p := cfg.Providers

	type seed struct {
		enabled bool
		desc    models.ProviderDescriptor
		adapter contracts.Provider
	}

	seeds := []seed{
		{p.EnableDuckDuckGo, models.ProviderDescriptor{
			Name:       "duckduckgo",
			Capability: models.CapabilitySearch,
			Quality:    0.70,
			QuotaKind:  models.QuotaRate,
			QuotaLimit: 1,
			RatePeriod: time.Second,
		}, providers.NewDuckDuckGo()},

		{p.EnableHTMLSearch, models.ProviderDescriptor{
			Name:       "htmlsearch",
			Capability: models.CapabilitySearch,
			Quality:    0.50,
			QuotaKind:  models.QuotaRate,
			QuotaLimit: 1,
			RatePeriod: 2 * time.Second,
		}, providers.NewHTMLSearch()},

		{p.EnableBrave, models.ProviderDescriptor{
			Name:        "brave",
			Capability:  models.CapabilitySearch,
			CostPerCall: 0.005,
			Quality:     0.85,
			QuotaKind:   models.QuotaMonthly,
			QuotaLimit:  2000,
		}, providers.NewBrave(p.BraveAPIKey)},

		{p.EnableStooq, models.ProviderDescriptor{
			Name:       "stooq",
			Capability: models.CapabilityFinancial,
			Quality:    0.75,
			QuotaKind:  models.QuotaRate,
			QuotaLimit: 2,
			RatePeriod: time.Second,
		}, providers.NewStooq()},

		{p.EnableAlpha, models.ProviderDescriptor{
			Name:        "alphavantage",
			Capability:  models.CapabilityFinancial,
			CostPerCall: 0.001,
			Quality:     0.90,
			QuotaKind:   models.QuotaDaily,
			QuotaLimit:  25,
		}, providers.NewAlphaVantage(p.AlphaVantageAPIKey)},

		{p.EnableRSSNews, models.ProviderDescriptor{
			Name:       "rssnews",
			Capability: models.CapabilityNews,
			Quality:    0.65,
			QuotaKind:  models.QuotaRate,
			QuotaLimit: 1,
			RatePeriod: time.Second,
		}, providers.NewRSSNews()},

		{p.EnableNewsAPI, models.ProviderDescriptor{
			Name:       "newsapi",
			Capability: models.CapabilityNews,
			Quality:    0.80,
			QuotaKind:  models.QuotaDaily,
			QuotaLimit: 100,
		}, providers.NewNewsAPI(p.NewsAPIKey)},
	}

	registered := 0
	for _, s := range seeds {
		if !s.enabled {
			log.Info().Str("provider", s.desc.Name).Msg("Provider disabled by config")
			continue
		}
		reg.Register(s.desc, s.adapter)
		quotas.Configure(s.desc)
		registered++
	}
	log.Info().Int("count", registered).Msg("✅ Provider registry seeded")
}
