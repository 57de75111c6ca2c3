package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// Config holds all configuration for the research fetch service.
type Config struct {
	Port        int
	Environment string // "development" or "production"
	Version     string
	LogLevel    string

	Router    RouterConfig
	Breaker   BreakerConfig
	Cache     CacheConfig
	Budget    BudgetConfig
	Providers ProvidersConfig
	Telemetry TelemetryConfig
	Alerts    AlertsConfig

	// APIKey gates the HTTP surface when set. Empty disables the gate.
	APIKey string
}

// RouterConfig tunes the escalation loop.
type RouterConfig struct {
	DefaultTier    string
	ResultCount    int           // default desired items per request
	MinResults     int           // sufficiency threshold before escalation stops
	AdapterTimeout time.Duration // per provider call, failures past it count against health
}

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before CLOSED→OPEN
	SuccessThreshold int           // HALF_OPEN probe successes before →CLOSED
	BaseCooldown     time.Duration // first OPEN cooldown; doubles per trip
	MaxCooldown      time.Duration // cooldown growth ceiling
}

// CacheConfig covers both tiers and the janitor.
type CacheConfig struct {
	Dir             string        // holds fetch_cache.db and ledger.json
	TTL             time.Duration // persistent tier retention
	MemoryTTL       time.Duration // in-process tier retention
	MemorySize      int           // in-process tier entry cap
	CleanupInterval time.Duration // janitor sweep period
}

// BudgetConfig sets the session spend thresholds.
type BudgetConfig struct {
	WarnUSD float64 // one-time advisory, never blocks
	MaxUSD  float64 // hard ceiling, checked before every paid call
}

// ProvidersConfig carries adapter credentials and enable flags. A missing
// key makes the adapter report itself unavailable rather than erroring.
type ProvidersConfig struct {
	BraveAPIKey        string
	AlphaVantageAPIKey string
	NewsAPIKey         string

	EnableDuckDuckGo bool
	EnableHTMLSearch bool
	EnableBrave      bool
	EnableStooq      bool
	EnableAlpha      bool
	EnableRSSNews    bool
	EnableNewsAPI    bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// AlertsConfig points budget/breaker alerts at a webhook. Empty URL means
// alerts are log-only.
type AlertsConfig struct {
	WebhookURL    string
	WebhookSecret string // HMAC-SHA256 signing key, optional
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:        envInt("RESEARCH_PORT", 8080),
		Environment: envStr("RESEARCH_ENV", "development"),
		Version:     envStr("RESEARCH_VERSION", "0.4.0"),
		LogLevel:    envStr("RESEARCH_LOG_LEVEL", ""),
		Router: RouterConfig{
			DefaultTier:    envStr("RESEARCH_DEFAULT_TIER", "balanced"),
			ResultCount:    envInt("RESEARCH_RESULT_COUNT", 10),
			MinResults:     envInt("RESEARCH_MIN_RESULTS", 3),
			AdapterTimeout: envDur("RESEARCH_ADAPTER_TIMEOUT", 20*time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("RESEARCH_BREAKER_FAILURES", 3),
			SuccessThreshold: envInt("RESEARCH_BREAKER_SUCCESSES", 2),
			BaseCooldown:     envDur("RESEARCH_BREAKER_COOLDOWN", 60*time.Second),
			MaxCooldown:      envDur("RESEARCH_BREAKER_MAX_COOLDOWN", time.Hour),
		},
		Cache: CacheConfig{
			Dir:             envStr("RESEARCH_CACHE_DIR", defaultCacheDir()),
			TTL:             envDur("RESEARCH_CACHE_TTL", 720*time.Hour),
			MemoryTTL:       envDur("RESEARCH_MEMORY_CACHE_TTL", 5*time.Minute),
			MemorySize:      envInt("RESEARCH_MEMORY_CACHE_SIZE", 512),
			CleanupInterval: envDur("RESEARCH_CACHE_CLEANUP_INTERVAL", time.Hour),
		},
		Budget: BudgetConfig{
			WarnUSD: envFloat("RESEARCH_BUDGET_WARN", 5.0),
			MaxUSD:  envFloat("RESEARCH_BUDGET_MAX", 25.0),
		},
		Providers: ProvidersConfig{
			BraveAPIKey:        envStr("RESEARCH_BRAVE_API_KEY", ""),
			AlphaVantageAPIKey: envStr("RESEARCH_ALPHAVANTAGE_API_KEY", ""),
			NewsAPIKey:         envStr("RESEARCH_NEWSAPI_API_KEY", ""),
			EnableDuckDuckGo:   envBool("RESEARCH_ENABLE_DUCKDUCKGO", true),
			EnableHTMLSearch:   envBool("RESEARCH_ENABLE_HTMLSEARCH", true),
			EnableBrave:        envBool("RESEARCH_ENABLE_BRAVE", true),
			EnableStooq:        envBool("RESEARCH_ENABLE_STOOQ", true),
			EnableAlpha:        envBool("RESEARCH_ENABLE_ALPHAVANTAGE", true),
			EnableRSSNews:      envBool("RESEARCH_ENABLE_RSSNEWS", true),
			EnableNewsAPI:      envBool("RESEARCH_ENABLE_NEWSAPI", true),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "research-fetch"),
		},
		Alerts: AlertsConfig{
			WebhookURL:    envStr("RESEARCH_ALERT_WEBHOOK_URL", ""),
			WebhookSecret: envStr("RESEARCH_ALERT_WEBHOOK_SECRET", ""),
		},
		APIKey: envStr("RESEARCH_API_KEY", ""),
	}
}

// defaultCacheDir resolves the XDG cache home so the persistent tier and
// ledger survive restarts without explicit configuration.
func defaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, "research-fetch")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
