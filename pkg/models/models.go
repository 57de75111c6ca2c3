// Package models defines the shared domain types for the research fetch
// service: provider descriptors, fetch requests and responses, breaker and
// quota snapshots, the cost ledger record, and the statistics document.
package models

import (
	"strings"
	"time"
)

// ── Policy Tiers ─────────────────────────────────────────────

// Tier names an ordering preference over providers balancing cost
// against quality.
type Tier string

const (
	// TierFree admits only zero-cost providers, best quality first.
	TierFree Tier = "free"
	// TierBalanced tries every provider cheapest-first. This is the default.
	TierBalanced Tier = "balanced"
	// TierPremium tries every provider best-quality-first.
	TierPremium Tier = "premium"
)

// ParseTier maps user input onto a Tier. Unknown values fall back to
// TierBalanced rather than erroring.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free", "free-only", "free_only":
		return TierFree
	case "premium", "best", "best-quality", "best_quality":
		return TierPremium
	default:
		return TierBalanced
	}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierBalanced || t == TierPremium
}

// ── Capabilities ─────────────────────────────────────────────

// Capability tags what kind of data a provider serves.
type Capability string

const (
	CapabilitySearch    Capability = "search"
	CapabilityFinancial Capability = "financial"
	CapabilityNews      Capability = "news"
)

// ── Quota Kinds ──────────────────────────────────────────────

// QuotaKind selects the admission policy applied to a provider.
type QuotaKind string

const (
	// QuotaUnlimited providers are always admissible.
	QuotaUnlimited QuotaKind = "unlimited"
	// QuotaRate providers are gated by a continuous token bucket;
	// acquiring a token may wait, it never fails outright.
	QuotaRate QuotaKind = "rate"
	// QuotaDaily providers have a hard call ceiling that resets at the
	// next UTC midnight. An exhausted quota is a skip, never a wait.
	QuotaDaily QuotaKind = "daily"
	// QuotaMonthly providers reset on the first of the next month (UTC).
	QuotaMonthly QuotaKind = "monthly"
)

// Calendar reports whether the kind is a hard calendar ceiling.
func (k QuotaKind) Calendar() bool {
	return k == QuotaDaily || k == QuotaMonthly
}

// ── Breaker States ───────────────────────────────────────────

// BreakerState is the circuit breaker's position for one provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ── Provider Descriptor ──────────────────────────────────────

// ProviderDescriptor is the static metadata the registry holds per
// provider. Descriptors are defined at startup and never mutated.
type ProviderDescriptor struct {
	Name        string     `json:"name"`
	Capability  Capability `json:"capability"`
	CostPerCall float64    `json:"cost_per_call"` // USD
	Quality     float64    `json:"quality"`       // relative authority weight, 0–1

	QuotaKind  QuotaKind `json:"quota_kind"`
	QuotaLimit int       `json:"quota_limit,omitempty"` // calls per window (calendar) or per period (rate)

	// RatePeriod is the refill window for QuotaRate providers, e.g.
	// limit=2, period=1s admits two calls per second. Ignored otherwise.
	RatePeriod time.Duration `json:"rate_period,omitempty"`
}

// Free reports whether calls to this provider are unpriced.
func (d ProviderDescriptor) Free() bool { return d.CostPerCall == 0 }

// ── Fetch Request / Response ─────────────────────────────────

// FetchRequest is one routed fetch. Handlers fill defaults before the
// router sees it; zero values mean "use the configured default".
type FetchRequest struct {
	Query       string     `json:"query"`
	Capability  Capability `json:"-"` // fixed by the endpoint, not the caller
	ResultCount int        `json:"count,omitempty"`
	Tier        Tier       `json:"tier,omitempty"`
	UseCache    bool       `json:"use_cache"`
	MinResults  int        `json:"min_results,omitempty"`
	Provider    string     `json:"provider,omitempty"` // force a single provider
}

// ResultItem is one normalized result entry.
type ResultItem struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Snippet   string     `json:"snippet,omitempty"`
	Score     float64    `json:"score"`    // calibrated relevance, 0–1
	Provider  string     `json:"provider"` // source provider name
	Published *time.Time `json:"published,omitempty"`
}

// FetchResponse is the normalized outcome of a routed fetch. Callers
// always receive one of these with an explicit success flag; provider
// failures along the way are not surfaced as errors unless every
// candidate was exhausted.
type FetchResponse struct {
	Query      string       `json:"query"`
	Capability Capability   `json:"capability"`
	Items      []ResultItem `json:"items"`
	Provider   string       `json:"provider,omitempty"` // provider that produced the items
	Cost       float64      `json:"cost"`               // total charged across all calls made for this request
	Cached     bool         `json:"cached"`
	Success    bool         `json:"success"`
	Error      string       `json:"error,omitempty"`
	ElapsedMs  int64        `json:"elapsed_ms"`
	FetchedAt  time.Time    `json:"fetched_at"`
}

// ── Health / Quota Snapshots ─────────────────────────────────

// ProviderHealth is a read-only snapshot of one provider's breaker and
// call history. The breaker owns the live state; snapshots are copies.
type ProviderHealth struct {
	Provider            string       `json:"provider"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalCalls          int64        `json:"total_calls"`
	TotalSuccesses      int64        `json:"total_successes"`
	AvgLatencyMs        int64        `json:"avg_latency_ms"`
	LastSuccess         time.Time    `json:"last_success,omitempty"`
	LastFailure         time.Time    `json:"last_failure,omitempty"`
	CooldownUntil       time.Time    `json:"cooldown_until,omitempty"`
	Trips               int          `json:"trips"` // times the breaker has opened
}

// QuotaSnapshot is a read-only view of one provider's admission window.
type QuotaSnapshot struct {
	Kind    QuotaKind `json:"kind"`
	Limit   int       `json:"limit,omitempty"`
	Used    int       `json:"used,omitempty"`
	ResetAt time.Time `json:"reset_at,omitempty"`
}

// ── Cost Ledger ──────────────────────────────────────────────

// LedgerEntry is one append-only cost record, created for every real
// (non-cached) provider call.
type LedgerEntry struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	Capability Capability `json:"capability"`
	Query      string     `json:"query"`
	Cost       float64    `json:"cost"`
	Total      float64    `json:"total"` // cumulative spend at the time of this call
	At         time.Time  `json:"at"`
}

// CostSummary aggregates the ledger for reporting.
type CostSummary struct {
	TotalCostUSD    float64            `json:"total_cost_usd"`
	TotalCalls      int64              `json:"total_calls"`
	ByProvider      map[string]float64 `json:"by_provider"`
	CallsByProvider map[string]int64   `json:"calls_by_provider"`
	WarnThreshold   float64            `json:"warn_threshold"`
	HardCeiling     float64            `json:"hard_ceiling"`
	WarnCrossed     bool               `json:"warn_crossed"`
}

// ── Statistics ───────────────────────────────────────────────

// ProviderStats is the per-provider slice of the stats document.
type ProviderStats struct {
	Queries      int64         `json:"queries"`
	Cost         float64       `json:"cost"`
	Errors       int64         `json:"errors"`
	AvgLatencyMs int64         `json:"avg_latency_ms"`
	Breaker      BreakerState  `json:"breaker"`
	Quota        QuotaSnapshot `json:"quota"`
	Available    bool          `json:"available"`
}

// Stats is the getStats() document.
type Stats struct {
	TotalQueries       int64                    `json:"total_queries"`
	TotalCost          float64                  `json:"total_cost"`
	CacheHits          int64                    `json:"cache_hits"`
	CacheMisses        int64                    `json:"cache_misses"`
	PerProvider        map[string]ProviderStats `json:"per_provider"`
	AvailableProviders []string                 `json:"available_providers"`
	StartedAt          time.Time                `json:"started_at"`
}

// CacheStats counts activity across both cache tiers.
type CacheStats struct {
	MemoryEntries     int   `json:"memory_entries"`
	MemoryHits        int64 `json:"memory_hits"`
	PersistentEntries int64 `json:"persistent_entries"`
	PersistentHits    int64 `json:"persistent_hits"`
	Misses            int64 `json:"misses"`
	Expired           int64 `json:"expired"` // entries lazily purged past TTL
	Writes            int64 `json:"writes"`
	Evictions         int64 `json:"evictions"`
}

// ── Alerts ───────────────────────────────────────────────────

// AlertKind classifies operational alert events.
type AlertKind string

const (
	AlertBudgetWarning    AlertKind = "budget_warning"
	AlertBudgetExceeded   AlertKind = "budget_exceeded"
	AlertBreakerOpened    AlertKind = "breaker_opened"
	AlertBreakerRecovered AlertKind = "breaker_recovered"
)

// AlertEvent is the payload published to the alert sink (and, when
// configured, posted to the alert webhook).
type AlertEvent struct {
	Kind      AlertKind `json:"kind"`
	Provider  string    `json:"provider,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value,omitempty"`     // spend or failure count, per kind
	Threshold float64   `json:"threshold,omitempty"` // the limit that was crossed
	Timestamp time.Time `json:"timestamp"`
}

// ── Query Normalization ──────────────────────────────────────

// NormalizeQuery puts a query into canonical form for cache keys and
// scoring: lowercased with internal whitespace collapsed.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
