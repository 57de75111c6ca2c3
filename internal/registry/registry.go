// Package registry holds the provider descriptor registry.
//
// Descriptors are static metadata defined at startup: cost per call, quality
// weight, quota model, capability. The registry binds each descriptor to its
// adapter and answers the one question the fetch router asks: "give me the
// ordered candidate list for this capability under this policy tier".
// Selection always goes through descriptors, never through string dispatch
// in the routing loop.
package registry

import (
	"sort"
	"sync"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a requested provider is not registered.
type ErrNotFound struct {
	Provider string
}

func (e *ErrNotFound) Error() string {
	return "provider not found: " + e.Provider
}

// Entry pairs a descriptor with its adapter.
type Entry struct {
	Descriptor models.ProviderDescriptor
	Adapter    contracts.Provider
}

// Registry is the provider descriptor registry. Registration happens during
// startup wiring; lookups run concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string // registration order, for stable listings
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Register binds a descriptor to its adapter. Registering a name twice
// replaces the previous binding (last wins).
func (r *Registry) Register(desc models.ProviderDescriptor, adapter contracts.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name]; exists {
		log.Warn().Str("provider", desc.Name).Msg("Provider re-registered, replacing binding")
	} else {
		r.order = append(r.order, desc.Name)
	}
	r.entries[desc.Name] = &Entry{Descriptor: desc, Adapter: adapter}

	log.Info().
		Str("provider", desc.Name).
		Str("capability", string(desc.Capability)).
		Float64("cost_per_call", desc.CostPerCall).
		Float64("quality", desc.Quality).
		Str("quota", string(desc.QuotaKind)).
		Msg("Provider registered")
}

// Get returns the entry for the named provider.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, &ErrNotFound{Provider: name}
	}
	return e, nil
}

// List returns every registered descriptor in registration order.
func (r *Registry) List() []models.ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ProviderDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Descriptor)
	}
	return out
}

// Candidates returns the ordered candidate list for a capability under the
// given policy tier:
//
//   - free:     zero-cost providers only, best quality first
//   - balanced: every provider, cheapest first, quality breaking ties
//   - premium:  every provider, best quality first, cost breaking ties
//
// Registration order is the final tiebreak, so the ordering is deterministic.
func (r *Registry) Candidates(capability models.Capability, tier models.Tier) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, name := range r.order {
		e := r.entries[name]
		if e.Descriptor.Capability != capability {
			continue
		}
		if tier == models.TierFree && !e.Descriptor.Free() {
			continue
		}
		out = append(out, e)
	}

	switch tier {
	case models.TierPremium:
		sort.SliceStable(out, func(i, j int) bool {
			di, dj := out[i].Descriptor, out[j].Descriptor
			if di.Quality != dj.Quality {
				return di.Quality > dj.Quality
			}
			return di.CostPerCall < dj.CostPerCall
		})
	case models.TierFree:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Descriptor.Quality > out[j].Descriptor.Quality
		})
	default: // balanced
		sort.SliceStable(out, func(i, j int) bool {
			di, dj := out[i].Descriptor, out[j].Descriptor
			if di.CostPerCall != dj.CostPerCall {
				return di.CostPerCall < dj.CostPerCall
			}
			return di.Quality > dj.Quality
		})
	}
	return out
}
