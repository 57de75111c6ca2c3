// Package breaker implements the per-provider circuit breaker.
//
// Each provider gets one Breaker cycling CLOSED → OPEN → HALF_OPEN →
// CLOSED indefinitely. Consecutive failures trip it OPEN; while OPEN all
// admissions are rejected locally (no network call) until a cooldown
// elapses. The cooldown doubles with every trip up to a ceiling and
// resets to its base once the breaker fully recovers. After the cooldown
// the breaker admits a limited number of HALF_OPEN probe calls; enough
// consecutive probe successes close it, any probe failure reopens it
// immediately.
//
// The breaker also owns the provider health record: consecutive failures,
// cumulative calls and successes, last success/failure instants, and a
// smoothed latency average.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/rs/zerolog/log"
)

// Defaults applied by Options.normalize when a field is zero.
const (
	DefaultFailureThreshold = 3
	DefaultSuccessThreshold = 2
	DefaultBaseCooldown     = 60 * time.Second
	DefaultMaxCooldown      = time.Hour
)

// Options tunes a breaker group. Zero fields take the defaults above.
type Options struct {
	FailureThreshold int
	SuccessThreshold int
	BaseCooldown     time.Duration
	MaxCooldown      time.Duration
}

func (o Options) normalize() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = DefaultSuccessThreshold
	}
	if o.BaseCooldown <= 0 {
		o.BaseCooldown = DefaultBaseCooldown
	}
	if o.MaxCooldown < o.BaseCooldown {
		o.MaxCooldown = DefaultMaxCooldown
	}
	return o
}

// ── Breaker ──────────────────────────────────────────────────

// Breaker tracks failure state for a single provider. All methods are
// safe for concurrent use; updates are linearizable under one mutex so
// two concurrent failures are both counted.
type Breaker struct {
	mu sync.Mutex

	provider string
	opts     Options
	alerts   contracts.AlertSink

	state               models.BreakerState
	consecutiveFailures int
	probes              int // HALF_OPEN admissions handed out this round
	recoveries          int // consecutive HALF_OPEN successes

	cooldown      time.Duration // applied on the next trip; doubles per trip
	cooldownUntil time.Time
	trips         int

	totalCalls     int64
	totalSuccesses int64
	lastSuccess    time.Time
	lastFailure    time.Time
	avgLatency     time.Duration

	now func() time.Time // test hook
}

// New creates a CLOSED breaker for the named provider.
func New(provider string, opts Options, alerts contracts.AlertSink) *Breaker {
	opts = opts.normalize()
	return &Breaker{
		provider: provider,
		opts:     opts,
		alerts:   alerts,
		state:    models.BreakerClosed,
		cooldown: opts.BaseCooldown,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed, consuming a probe slot when
// HALF_OPEN. Callers must follow every true with exactly one
// RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed:
		return true
	case models.BreakerOpen:
		if b.now().Before(b.cooldownUntil) {
			return false
		}
		// Cooldown elapsed: probe.
		b.state = models.BreakerHalfOpen
		b.probes = 0
		b.recoveries = 0
		log.Info().Str("provider", b.provider).Msg("Breaker half-open, probing")
		fallthrough
	case models.BreakerHalfOpen:
		if b.probes >= b.opts.SuccessThreshold {
			return false
		}
		b.probes++
		return true
	}
	return false
}

// Admissible reports whether Allow would currently return true, without
// consuming a probe slot. Used for candidate filtering and stats.
func (b *Breaker) Admissible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.BreakerClosed:
		return true
	case models.BreakerOpen:
		return !b.now().Before(b.cooldownUntil)
	case models.BreakerHalfOpen:
		return b.probes < b.opts.SuccessThreshold
	}
	return false
}

// RecordSuccess counts a successful call. Any success zeroes the
// consecutive failure count; enough HALF_OPEN successes close the breaker
// and reset the cooldown to its base.
func (b *Breaker) RecordSuccess(latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalCalls++
	b.totalSuccesses++
	b.lastSuccess = now
	b.consecutiveFailures = 0
	b.updateLatency(latency)

	if b.state != models.BreakerHalfOpen {
		return
	}
	b.recoveries++
	if b.recoveries < b.opts.SuccessThreshold {
		return
	}

	b.state = models.BreakerClosed
	b.probes = 0
	b.recoveries = 0
	b.cooldown = b.opts.BaseCooldown
	log.Info().Str("provider", b.provider).Msg("Breaker closed, provider recovered")
	b.publish(models.AlertEvent{
		Kind:      models.AlertBreakerRecovered,
		Provider:  b.provider,
		Message:   "provider recovered, breaker closed",
		Timestamp: now,
	})
}

// RecordFailure counts a failed call (timeouts included). A HALF_OPEN
// failure reopens immediately; a CLOSED breaker opens once consecutive
// failures reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++
	b.lastFailure = b.now()
	b.consecutiveFailures++

	switch b.state {
	case models.BreakerHalfOpen:
		b.trip()
	case models.BreakerClosed:
		if b.consecutiveFailures >= b.opts.FailureThreshold {
			b.trip()
		}
	}
}

// trip opens the breaker and schedules the next cooldown. Caller holds b.mu.
func (b *Breaker) trip() {
	now := b.now()
	b.state = models.BreakerOpen
	b.trips++
	b.probes = 0
	b.recoveries = 0
	b.cooldownUntil = now.Add(b.cooldown)

	log.Warn().
		Str("provider", b.provider).
		Int("consecutive_failures", b.consecutiveFailures).
		Dur("cooldown", b.cooldown).
		Msg("Breaker opened")
	b.publish(models.AlertEvent{
		Kind:      models.AlertBreakerOpened,
		Provider:  b.provider,
		Message:   "breaker opened after consecutive failures",
		Value:     float64(b.consecutiveFailures),
		Threshold: float64(b.opts.FailureThreshold),
		Timestamp: now,
	})

	// Exponential growth for the next trip, capped.
	b.cooldown *= 2
	if b.cooldown > b.opts.MaxCooldown {
		b.cooldown = b.opts.MaxCooldown
	}
}

// updateLatency keeps a weighted moving average biased toward history
// (70% old, 30% new). Caller holds b.mu.
func (b *Breaker) updateLatency(latency time.Duration) {
	if b.avgLatency == 0 {
		b.avgLatency = latency
		return
	}
	b.avgLatency = (b.avgLatency*7 + latency*3) / 10
}

// State returns the breaker's current position without side effects.
func (b *Breaker) State() models.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the provider's health record.
func (b *Breaker) Snapshot() models.ProviderHealth {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.ProviderHealth{
		Provider:            b.provider,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		TotalCalls:          b.totalCalls,
		TotalSuccesses:      b.totalSuccesses,
		AvgLatencyMs:        b.avgLatency.Milliseconds(),
		LastSuccess:         b.lastSuccess,
		LastFailure:         b.lastFailure,
		CooldownUntil:       b.cooldownUntil,
		Trips:               b.trips,
	}
}

func (b *Breaker) publish(event models.AlertEvent) {
	if b.alerts == nil {
		return
	}
	b.alerts.Publish(context.Background(), event)
}

// ── Group ────────────────────────────────────────────────────

// Group holds one breaker per provider, created lazily.
type Group struct {
	mu       sync.Mutex
	opts     Options
	alerts   contracts.AlertSink
	breakers map[string]*Breaker
}

// NewGroup creates an empty breaker group. alerts may be nil.
func NewGroup(opts Options, alerts contracts.AlertSink) *Group {
	return &Group{
		opts:     opts.normalize(),
		alerts:   alerts,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for the named provider, creating it CLOSED on
// first use.
func (g *Group) For(provider string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[provider]
	if !ok {
		b = New(provider, g.opts, g.alerts)
		g.breakers[provider] = b
	}
	return b
}

// Snapshots returns health records for every provider seen so far.
func (g *Group) Snapshots() map[string]models.ProviderHealth {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]models.ProviderHealth, len(g.breakers))
	for name, b := range g.breakers {
		out[name] = b.Snapshot()
	}
	return out
}
