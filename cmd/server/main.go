// Research Fetch Service — resilient multi-provider data acquisition.
//
// This is the main entry point for the standalone server. It provides:
//   - Provider registry with cost/quality descriptors
//   - Escalation fetch router (search, financial, news)
//   - Per-provider circuit breakers and quota gates
//   - Dual-tier result cache (in-process + sqlite)
//   - Session cost ledger with budget ceilings

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/config"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/server"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	zerolog.SetGlobalLevel(logLevel(cfg))

	log.Info().Str("version", cfg.Version).Msg("🔎 Research fetch service starting...")

	ctx := context.Background()
	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	defer srv.Close()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.Port),
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", srv.Port).
		Str("default_tier", cfg.Router.DefaultTier).
		Msg("📡 Ready to fetch")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// logLevel maps RESEARCH_LOG_LEVEL onto zerolog, defaulting to debug in
// development and info everywhere else.
func logLevel(cfg *config.Config) zerolog.Level {
	if cfg.LogLevel != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
			return lvl
		}
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, using default")
	}
	if cfg.Environment == "production" {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
