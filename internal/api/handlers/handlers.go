// Package handlers implements the HTTP handlers of the research fetch
// service. Every fetch endpoint returns a FetchResponse document with an
// explicit success flag; hard HTTP errors are reserved for bad requests,
// budget refusals and missing configuration.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/cache"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/fetch"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/ledger"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/registry"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Fetch    *fetch.Router
	Registry *registry.Registry
	Cache    *cache.Store
	Ledger   *ledger.Ledger
}

// New creates a Handlers instance.
func New(router *fetch.Router, reg *registry.Registry, store *cache.Store, costs *ledger.Ledger) *Handlers {
	return &Handlers{
		Fetch:    router,
		Registry: reg,
		Cache:    store,
		Ledger:   costs,
	}
}

// ── Fetch Handlers ───────────────────────────────────────────

// fetchBody is the request payload of the three fetch endpoints.
// use_cache defaults to true when omitted.
type fetchBody struct {
	Query      string `json:"query"`
	Count      int    `json:"count"`
	Tier       string `json:"tier"`
	UseCache   *bool  `json:"use_cache"`
	MinResults int    `json:"min_results"`
	Provider   string `json:"provider"`
}

func (b fetchBody) request(capability models.Capability) models.FetchRequest {
	req := models.FetchRequest{
		Query:       strings.TrimSpace(b.Query),
		Capability:  capability,
		ResultCount: b.Count,
		MinResults:  b.MinResults,
		Provider:    strings.TrimSpace(b.Provider),
		UseCache:    true,
	}
	if b.UseCache != nil {
		req.UseCache = *b.UseCache
	}
	if b.Tier != "" {
		req.Tier = models.ParseTier(b.Tier)
	}
	return req
}

// Search handles POST /api/v1/search.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	h.serveFetch(w, r, models.CapabilitySearch)
}

// Financial handles POST /api/v1/financial.
func (h *Handlers) Financial(w http.ResponseWriter, r *http.Request) {
	h.serveFetch(w, r, models.CapabilityFinancial)
}

// News handles POST /api/v1/news.
func (h *Handlers) News(w http.ResponseWriter, r *http.Request) {
	h.serveFetch(w, r, models.CapabilityNews)
}

func (h *Handlers) serveFetch(w http.ResponseWriter, r *http.Request, capability models.Capability) {
	var body fetchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req := body.request(capability)
	if req.Query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.Fetch.Fetch(r.Context(), req)
	if err != nil {
		h.respondFetchError(w, resp, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondFetchError maps router errors onto the HTTP surface. Ordinary
// provider failures still carry a response document; the rest are hard
// errors.
func (h *Handlers) respondFetchError(w http.ResponseWriter, resp *models.FetchResponse, err error) {
	var (
		budgetErr   *ledger.BudgetError
		allFailed   *fetch.AllFailedError
		notFound    *registry.ErrNotFound
		noProviders *fetch.ErrNoProviders
	)
	switch {
	case errors.As(err, &budgetErr):
		respondError(w, http.StatusPaymentRequired, err.Error())
	case errors.As(err, &allFailed):
		respondJSON(w, http.StatusOK, resp)
	case errors.As(err, &notFound):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noProviders):
		log.Error().Err(err).Msg("Fetch request hit an unconfigured capability")
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

// ── Introspection Handlers ───────────────────────────────────

// Health reports liveness plus which providers would currently be tried.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.Fetch.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "healthy",
		"service":             "research-fetch",
		"available_providers": stats.AvailableProviders,
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Fetch.Stats())
}

// providerView pairs a registered descriptor with its live stats.
type providerView struct {
	models.ProviderDescriptor
	Stats models.ProviderStats `json:"stats"`
}

// Providers handles GET /api/v1/providers.
func (h *Handlers) Providers(w http.ResponseWriter, r *http.Request) {
	stats := h.Fetch.Stats()
	descs := h.Registry.List()
	out := make([]providerView, 0, len(descs))
	for _, desc := range descs {
		out = append(out, providerView{
			ProviderDescriptor: desc,
			Stats:              stats.PerProvider[desc.Name],
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// ── Cost Handlers ────────────────────────────────────────────

// Costs handles GET /api/v1/costs: the ledger summary plus the newest
// entries.
func (h *Handlers) Costs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"summary": h.Ledger.Summary(),
		"recent":  h.Ledger.Recent(50),
	})
}

// ResetCosts handles POST /api/v1/costs/reset. The ledger only ever
// resets here, at explicit operator request.
func (h *Handlers) ResetCosts(w http.ResponseWriter, r *http.Request) {
	h.Ledger.Reset()
	respondJSON(w, http.StatusOK, h.Ledger.Summary())
}

// ── Cache Handlers ───────────────────────────────────────────

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Cache.Stats())
}

// PurgeCache handles POST /api/v1/cache/purge: sweep expired entries now
// instead of waiting for the janitor.
func (h *Handlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Cache.Purge()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// ── Response Helpers ─────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
