// Package quota enforces per-provider call budgets.
//
// Three shapes exist: token-bucket rate limits for free endpoints that
// tolerate a steady trickle, and daily or monthly calendar quotas for keyed
// plans with a fixed allowance. Rate gates make callers wait (bounded by
// their context); calendar gates reject once the window's allowance is
// spent and replenish lazily when the window rolls over. No background
// timer is involved.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrExhausted reports a calendar quota with no remaining allowance.
type ErrExhausted struct {
	Provider string
	ResetAt  time.Time
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("quota exhausted for %s until %s", e.Provider, e.ResetAt.Format(time.RFC3339))
}

type gate struct {
	kind    models.QuotaKind
	limit   int
	limiter *rate.Limiter // rate kind only
	used    int           // calendar kinds only
	resetAt time.Time     // calendar kinds only
}

// Manager tracks one gate per configured provider. Providers that were
// never configured are treated as unlimited.
type Manager struct {
	mu    sync.Mutex
	gates map[string]*gate
	now   func() time.Time
}

// NewManager creates an empty quota manager.
func NewManager() *Manager {
	return &Manager{
		gates: make(map[string]*gate),
		now:   time.Now,
	}
}

// Configure installs the gate described by the provider descriptor.
// Reconfiguring a provider resets its usage.
func (m *Manager) Configure(desc models.ProviderDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := &gate{kind: desc.QuotaKind, limit: desc.QuotaLimit}
	switch desc.QuotaKind {
	case models.QuotaRate:
		limit := desc.QuotaLimit
		if limit < 1 {
			limit = 1
		}
		period := desc.RatePeriod
		if period <= 0 {
			period = time.Second
		}
		g.limit = limit
		g.limiter = rate.NewLimiter(rate.Every(period/time.Duration(limit)), limit)
	case models.QuotaDaily, models.QuotaMonthly:
		g.resetAt = nextBoundary(m.now().UTC(), desc.QuotaKind)
	default:
		g.kind = models.QuotaUnlimited
	}
	m.gates[desc.Name] = g
}

// Admissible reports whether the provider could be called now without
// waiting out a calendar window. Rate gates always admit: their waits are
// short and bounded by the caller's context, so they are not grounds to
// skip a provider during selection.
func (m *Manager) Admissible(provider string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.gates[provider]
	if !ok || g.kind == models.QuotaUnlimited || g.kind == models.QuotaRate {
		return true
	}
	m.roll(g)
	return g.used < g.limit
}

// Acquire consumes one unit of the provider's quota. For rate gates it
// blocks until a token is available or ctx is done. For calendar gates it
// consumes a unit or returns *ErrExhausted.
func (m *Manager) Acquire(ctx context.Context, provider string) error {
	m.mu.Lock()
	g, ok := m.gates[provider]
	if !ok || g.kind == models.QuotaUnlimited {
		m.mu.Unlock()
		return nil
	}

	if g.kind == models.QuotaRate {
		limiter := g.limiter
		m.mu.Unlock() // never hold the lock across a wait
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate wait for %s: %w", provider, err)
		}
		return nil
	}

	defer m.mu.Unlock()
	m.roll(g)
	if g.used >= g.limit {
		return &ErrExhausted{Provider: provider, ResetAt: g.resetAt}
	}
	g.used++
	if g.used == g.limit {
		log.Warn().
			Str("provider", provider).
			Int("limit", g.limit).
			Time("reset_at", g.resetAt).
			Msg("Provider quota fully consumed")
	}
	return nil
}

// Snapshot returns the provider's current quota state.
func (m *Manager) Snapshot(provider string) models.QuotaSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.gates[provider]
	if !ok {
		return models.QuotaSnapshot{Kind: models.QuotaUnlimited}
	}
	switch g.kind {
	case models.QuotaDaily, models.QuotaMonthly:
		m.roll(g)
		return models.QuotaSnapshot{Kind: g.kind, Limit: g.limit, Used: g.used, ResetAt: g.resetAt}
	case models.QuotaRate:
		return models.QuotaSnapshot{Kind: g.kind, Limit: g.limit}
	default:
		return models.QuotaSnapshot{Kind: models.QuotaUnlimited}
	}
}

// roll advances a calendar gate through any windows that have fully
// elapsed, zeroing usage each time. Advancing one window at a time keeps
// resetAt aligned on calendar boundaries no matter how long the process
// sat idle. Caller holds m.mu.
func (m *Manager) roll(g *gate) {
	now := m.now().UTC()
	for !now.Before(g.resetAt) {
		g.used = 0
		switch g.kind {
		case models.QuotaMonthly:
			g.resetAt = g.resetAt.AddDate(0, 1, 0)
		default:
			g.resetAt = g.resetAt.AddDate(0, 0, 1)
		}
	}
}

// nextBoundary returns the first UTC window boundary after now.
func nextBoundary(now time.Time, kind models.QuotaKind) time.Time {
	if kind == models.QuotaMonthly {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
