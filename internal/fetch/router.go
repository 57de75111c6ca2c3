// Package fetch routes research queries across ranked provider
// candidates, escalating on insufficiency and stopping at the first
// sufficient result.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/breaker"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/cache"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/ledger"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/normalize"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/quota"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/registry"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

var _ contracts.FetchService = (*Router)(nil)

// ── Errors ───────────────────────────────────────────────────

// AllFailedError reports that every admissible candidate was tried and
// none produced a usable result. Last wraps the final concrete failure.
type AllFailedError struct {
	Query    string
	Attempts int
	Last     error
}

func (e *AllFailedError) Error() string {
	switch {
	case e.Attempts == 0 && e.Last == nil:
		return fmt.Sprintf("no admissible provider for %q", e.Query)
	case e.Attempts == 0:
		return fmt.Sprintf("fetch aborted for %q: %v", e.Query, e.Last)
	default:
		return fmt.Sprintf("all %d provider attempts failed for %q: %v", e.Attempts, e.Query, e.Last)
	}
}

func (e *AllFailedError) Unwrap() error { return e.Last }

// ErrNoProviders reports an empty candidate list for a capability. This
// is a deployment problem, not a per-request one.
type ErrNoProviders struct {
	Capability models.Capability
}

func (e *ErrNoProviders) Error() string {
	return fmt.Sprintf("no providers registered for capability %q", e.Capability)
}

// ── Options ──────────────────────────────────────────────────

// Options tune routing defaults. Zero values fall back to the balanced
// tier, 10 results, a floor of 3 items and a 20s per-call timeout.
type Options struct {
	DefaultTier    models.Tier
	DefaultCount   int
	MinResults     int
	AdapterTimeout time.Duration
}

func (o Options) normalize() Options {
	if !o.DefaultTier.Valid() {
		o.DefaultTier = models.TierBalanced
	}
	if o.DefaultCount <= 0 {
		o.DefaultCount = 10
	}
	if o.MinResults <= 0 {
		o.MinResults = 3
	}
	if o.AdapterTimeout <= 0 {
		o.AdapterTimeout = 20 * time.Second
	}
	return o
}

// ── Router ───────────────────────────────────────────────────

// Router drives fetch requests through the cache, the admission gates
// and the ranked provider loop. One engine serves every capability;
// Search, Financial and News are thin wrappers that pin it.
type Router struct {
	registry *registry.Registry
	breakers *breaker.Group
	quotas   *quota.Manager
	cache    *cache.Store
	ledger   *ledger.Ledger
	opts     Options

	totalQueries atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	startedAt    time.Time
}

// NewRouter wires the routing engine. All dependencies are required.
func NewRouter(reg *registry.Registry, breakers *breaker.Group, quotas *quota.Manager, store *cache.Store, costs *ledger.Ledger, opts Options) *Router {
	return &Router{
		registry:  reg,
		breakers:  breakers,
		quotas:    quotas,
		cache:     store,
		ledger:    costs,
		opts:      opts.normalize(),
		startedAt: time.Now().UTC(),
	}
}

// attemptOutcome classifies what one candidate contributed to a request.
type attemptOutcome int

const (
	outcomeSkipped      attemptOutcome = iota // no network call was made
	outcomeFailed                             // the call errored
	outcomeInsufficient                       // succeeded below the result floor
	outcomeSufficient                         // succeeded with enough results
)

// Fetch resolves one request: cache first, then the ranked candidates
// in order until one returns at least MinResults items. Paid calls
// clear the budget gate before any network I/O; a breached ceiling
// aborts the whole request.
func (r *Router) Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if req.ResultCount <= 0 {
		req.ResultCount = r.opts.DefaultCount
	}
	if req.MinResults <= 0 {
		req.MinResults = r.opts.MinResults
	}
	if !req.Tier.Valid() {
		req.Tier = r.opts.DefaultTier
	}

	start := time.Now()
	r.totalQueries.Add(1)
	key := cache.Key(req.Query, req.Capability, req.ResultCount, req.Provider)

	if req.UseCache {
		if hit, ok := r.cache.Get(key); ok && len(hit.Items) >= req.MinResults {
			r.cacheHits.Add(1)
			hit.Cached = true
			hit.Cost = 0
			hit.ElapsedMs = time.Since(start).Milliseconds()
			log.Debug().Str("query", req.Query).Str("provider", hit.Provider).Msg("Cache hit")
			return hit, nil
		}
		r.cacheMisses.Add(1)
	}

	candidates, err := r.candidates(req)
	if err != nil {
		return nil, err
	}

	var (
		best      *models.FetchResponse
		lastErr   error
		attempts  int
		totalCost float64
	)

	for _, cand := range candidates {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		desc := cand.Descriptor
		name := desc.Name
		br := r.breakers.For(name)

		switch {
		case !cand.Adapter.Available():
			log.Debug().Str("provider", name).Msg("Provider not configured, skipping")
			continue
		case !br.Admissible():
			log.Debug().Str("provider", name).Msg("Breaker rejecting calls, skipping")
			continue
		case !r.quotas.Admissible(name):
			log.Debug().Str("provider", name).Msg("Quota exhausted, skipping")
			continue
		}

		// Hard stop before the wire. A ceiling breach is never absorbed.
		if err := r.ledger.CheckBudget(desc.CostPerCall); err != nil {
			return nil, err
		}

		outcome, items, err := r.attempt(ctx, cand, br, req)
		switch outcome {
		case outcomeSkipped:
			continue
		case outcomeFailed:
			attempts++
			lastErr = err
			log.Warn().Str("provider", name).Err(err).Msg("Provider call failed, trying next")
			continue
		}

		attempts++
		totalCost += desc.CostPerCall
		r.ledger.Record(name, req.Capability, req.Query, desc.CostPerCall)

		resp := &models.FetchResponse{
			Query:      req.Query,
			Capability: req.Capability,
			Items:      items,
			Provider:   name,
			Cost:       totalCost,
			Success:    true,
			ElapsedMs:  time.Since(start).Milliseconds(),
			FetchedAt:  time.Now().UTC(),
		}

		if outcome == outcomeSufficient {
			if req.UseCache {
				r.cache.Put(key, resp)
			}
			log.Info().
				Str("provider", name).
				Str("query", req.Query).
				Int("items", len(items)).
				Float64("cost", totalCost).
				Msg("Fetch served")
			return resp, nil
		}

		log.Debug().
			Str("provider", name).
			Int("items", len(items)).
			Int("min", req.MinResults).
			Msg("Result floor not met, escalating")
		if best == nil || len(items) > len(best.Items) {
			best = resp
		}
	}

	if best != nil {
		// Partial beats empty: the caller sees fewer items than asked
		// for, never a fabricated failure.
		best.Cost = totalCost
		best.ElapsedMs = time.Since(start).Milliseconds()
		log.Info().
			Str("provider", best.Provider).
			Int("items", len(best.Items)).
			Int("min", req.MinResults).
			Msg("Serving best partial result")
		return best, nil
	}

	failErr := &AllFailedError{Query: req.Query, Attempts: attempts, Last: lastErr}
	resp := &models.FetchResponse{
		Query:      req.Query,
		Capability: req.Capability,
		Items:      []models.ResultItem{},
		Cost:       totalCost,
		Success:    false,
		Error:      failErr.Error(),
		ElapsedMs:  time.Since(start).Milliseconds(),
		FetchedAt:  time.Now().UTC(),
	}
	return resp, failErr
}

// candidates resolves the ranked provider list. A forced provider
// collapses the list to exactly that provider, after a capability check.
func (r *Router) candidates(req models.FetchRequest) ([]*registry.Entry, error) {
	if req.Provider != "" {
		entry, err := r.registry.Get(req.Provider)
		if err != nil {
			return nil, err
		}
		if entry.Descriptor.Capability != req.Capability {
			return nil, fmt.Errorf("provider %q serves %s, not %s",
				req.Provider, entry.Descriptor.Capability, req.Capability)
		}
		return []*registry.Entry{entry}, nil
	}
	list := r.registry.Candidates(req.Capability, req.Tier)
	if len(list) == 0 {
		return nil, &ErrNoProviders{Capability: req.Capability}
	}
	return list, nil
}

// attempt runs exactly one provider call: rate admission, breaker slot,
// the adapter under the per-call timeout, then health bookkeeping and
// normalization.
func (r *Router) attempt(ctx context.Context, cand *registry.Entry, br *breaker.Breaker, req models.FetchRequest) (attemptOutcome, []models.ResultItem, error) {
	name := cand.Descriptor.Name

	// Rate admission can block. Calendar admission was pre-checked but
	// may race out between the check and here.
	if err := r.quotas.Acquire(ctx, name); err != nil {
		log.Debug().Str("provider", name).Err(err).Msg("Quota admission refused, skipping")
		return outcomeSkipped, nil, nil
	}
	// Allow consumes the half-open probe slot, so it runs last of the
	// gates: nothing after it may bail without a recorded outcome.
	if !br.Allow() {
		return outcomeSkipped, nil, nil
	}

	cctx, cancel := context.WithTimeout(ctx, r.opts.AdapterTimeout)
	defer cancel()

	callStart := time.Now()
	raw, err := cand.Adapter.Fetch(cctx, req.Query, req.ResultCount)
	latency := time.Since(callStart)
	if err != nil {
		br.RecordFailure()
		return outcomeFailed, nil, err
	}
	br.RecordSuccess(latency)

	items := normalize.Normalize(req.Query, raw, req.ResultCount)
	if len(items) >= req.MinResults {
		return outcomeSufficient, items, nil
	}
	return outcomeInsufficient, items, nil
}

// ── Capability wrappers ──────────────────────────────────────

// Search routes a web search request.
func (r *Router) Search(ctx context.Context, req models.FetchRequest) (*models.FetchResponse, error) {
	req.Capability = models.CapabilitySearch
	return r.Fetch(ctx, req)
}

// Financial routes a market data request.
func (r *Router) Financial(ctx context.Context, req models.FetchRequest) (*models.FetchResponse, error) {
	req.Capability = models.CapabilityFinancial
	return r.Fetch(ctx, req)
}

// News routes a news coverage request.
func (r *Router) News(ctx context.Context, req models.FetchRequest) (*models.FetchResponse, error) {
	req.Capability = models.CapabilityNews
	return r.Fetch(ctx, req)
}

// ── Statistics ───────────────────────────────────────────────

// Stats assembles the running statistics document from the ledger, the
// breaker group and the quota manager.
func (r *Router) Stats() models.Stats {
	summary := r.ledger.Summary()

	per := make(map[string]models.ProviderStats)
	available := []string{}
	for _, desc := range r.registry.List() {
		name := desc.Name
		entry, err := r.registry.Get(name)
		if err != nil {
			continue
		}
		br := r.breakers.For(name)
		health := br.Snapshot()

		ok := entry.Adapter.Available() && br.Admissible() && r.quotas.Admissible(name)
		if ok {
			available = append(available, name)
		}
		per[name] = models.ProviderStats{
			Queries:      summary.CallsByProvider[name],
			Cost:         summary.ByProvider[name],
			Errors:       health.TotalCalls - health.TotalSuccesses,
			AvgLatencyMs: health.AvgLatencyMs,
			Breaker:      health.State,
			Quota:        r.quotas.Snapshot(name),
			Available:    ok,
		}
	}

	return models.Stats{
		TotalQueries:       r.totalQueries.Load(),
		TotalCost:          summary.TotalCostUSD,
		CacheHits:          r.cacheHits.Load(),
		CacheMisses:        r.cacheMisses.Load(),
		PerProvider:        per,
		AvailableProviders: available,
		StartedAt:          r.startedAt,
	}
}
