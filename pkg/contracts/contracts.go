// Package contracts defines the service interfaces of the research fetch
// router.
//
// These interfaces form the boundary between the routing engine and the
// pieces that plug into it. The repo ships concrete implementations
// (fetch.Router, the internal/providers adapters, notify.Service), and
// swapping in a custom one is a single line change in the wiring code
// (pkg/server).
package contracts

import (
	"context"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

// ── Provider Adapter ─────────────────────────────────────────

// Provider is the adapter contract every external data source implements.
// Ships: duckduckgo, htmlsearch, brave (search); stooq, alphavantage
// (financial); rssnews, newsapi (news). Adapters are registered in the
// provider registry together with their descriptor.
//
// Contract rules:
//   - Fetch must not retry internally and must not swallow errors; a
//     failed call returns (nil, err), never a fabricated success.
//   - Fetch must honor ctx cancellation and deadlines; every outbound
//     request is built with http.NewRequestWithContext.
//   - Fetch must be safe to invoke concurrently for different queries.
//   - Available reports whether the adapter can be called at all.
//     Missing credentials make it false; they never cause a panic or an
//     error at call time.
type Provider interface {
	// Name returns the provider identifier (e.g. "duckduckgo").
	Name() string

	// Capability returns the kind of data this provider serves.
	Capability() models.Capability

	// Available reports whether the adapter is usable (credentials
	// resolved, not disabled).
	Available() bool

	// Fetch runs one query and returns raw result items. Items carry
	// provider-assigned ordering; calibrated scoring happens downstream.
	Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error)
}

// ── Fetch Service ────────────────────────────────────────────

// FetchService routes fetch requests across providers under a cost/quality
// policy. Implementation: internal/fetch.Router.
type FetchService interface {
	// Fetch drives one request through cache, breakers, quotas and the
	// escalation loop. The returned response always carries an explicit
	// success flag; err is non-nil only for terminal conditions
	// (budget exceeded, all providers failed, no providers configured).
	Fetch(ctx context.Context, req models.FetchRequest) (*models.FetchResponse, error)

	// Stats returns the running statistics document.
	Stats() models.Stats
}

// ── Alert Sink ───────────────────────────────────────────────

// AlertSink receives operational alert events (budget thresholds crossed,
// breakers opening and recovering). Implementation: notify.Service.
// Publish must never block the caller on network I/O.
type AlertSink interface {
	Publish(ctx context.Context, event models.AlertEvent)
}
