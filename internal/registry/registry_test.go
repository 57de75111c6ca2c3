package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/registry"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

type nopProvider struct {
	name       string
	capability models.Capability
}

func (p *nopProvider) Name() string                  { return p.name }
func (p *nopProvider) Capability() models.Capability { return p.capability }
func (p *nopProvider) Available() bool               { return true }
func (p *nopProvider) Fetch(ctx context.Context, query string, maxResults int) ([]models.ResultItem, error) {
	return nil, nil
}

func register(r *registry.Registry, name string, capability models.Capability, cost, quality float64) {
	r.Register(models.ProviderDescriptor{
		Name:        name,
		Capability:  capability,
		CostPerCall: cost,
		Quality:     quality,
		QuotaKind:   models.QuotaUnlimited,
	}, &nopProvider{name: name, capability: capability})
}

func names(entries []*registry.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Descriptor.Name)
	}
	return out
}

func newTestRegistry() *registry.Registry {
	r := registry.New()
	register(r, "free-low", models.CapabilitySearch, 0, 0.50)
	register(r, "free-high", models.CapabilitySearch, 0, 0.70)
	register(r, "cheap", models.CapabilitySearch, 0.001, 0.85)
	register(r, "premium", models.CapabilitySearch, 0.005, 0.95)
	register(r, "quotes", models.CapabilityFinancial, 0, 0.75)
	return r
}

func TestCandidatesFreeTier(t *testing.T) {
	r := newTestRegistry()

	got := names(r.Candidates(models.CapabilitySearch, models.TierFree))
	want := []string{"free-high", "free-low"}
	if len(got) != len(want) {
		t.Fatalf("Candidates(free) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Candidates(free)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCandidatesBalancedTier(t *testing.T) {
	r := newTestRegistry()

	got := names(r.Candidates(models.CapabilitySearch, models.TierBalanced))
	// Cheapest first; quality breaks the zero-cost tie.
	want := []string{"free-high", "free-low", "cheap", "premium"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Candidates(balanced) = %v, want %v", got, want)
		}
	}
}

func TestCandidatesPremiumTier(t *testing.T) {
	r := newTestRegistry()

	got := names(r.Candidates(models.CapabilitySearch, models.TierPremium))
	want := []string{"premium", "cheap", "free-high", "free-low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Candidates(premium) = %v, want %v", got, want)
		}
	}
}

func TestCandidatesFiltersByCapability(t *testing.T) {
	r := newTestRegistry()

	got := r.Candidates(models.CapabilityFinancial, models.TierBalanced)
	if len(got) != 1 || got[0].Descriptor.Name != "quotes" {
		t.Fatalf("Candidates(financial) = %v, want [quotes]", names(got))
	}
	if got := r.Candidates(models.CapabilityNews, models.TierBalanced); len(got) != 0 {
		t.Fatalf("Candidates(news) = %v, want empty", names(got))
	}
}

func TestCandidatesDeterministicOnEqualDescriptors(t *testing.T) {
	r := registry.New()
	register(r, "alpha", models.CapabilitySearch, 0, 0.60)
	register(r, "beta", models.CapabilitySearch, 0, 0.60)

	for i := 0; i < 5; i++ {
		got := names(r.Candidates(models.CapabilitySearch, models.TierBalanced))
		if got[0] != "alpha" || got[1] != "beta" {
			t.Fatalf("Candidates order = %v, want registration order on ties", got)
		}
	}
}

func TestGetUnknownProvider(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Get("nope")
	var nf *registry.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("Get(nope) error = %v, want *registry.ErrNotFound", err)
	}
	if nf.Provider != "nope" {
		t.Errorf("ErrNotFound.Provider = %q, want %q", nf.Provider, "nope")
	}
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := registry.New()
	register(r, "dup", models.CapabilitySearch, 0, 0.50)
	r.Register(models.ProviderDescriptor{
		Name:       "dup",
		Capability: models.CapabilitySearch,
		Quality:    0.90,
		QuotaKind:  models.QuotaRate,
		QuotaLimit: 1,
		RatePeriod: time.Second,
	}, &nopProvider{name: "dup", capability: models.CapabilitySearch})

	e, err := r.Get("dup")
	if err != nil {
		t.Fatalf("Get(dup) error = %v", err)
	}
	if e.Descriptor.Quality != 0.90 {
		t.Errorf("Quality after re-register = %v, want 0.90", e.Descriptor.Quality)
	}
	if got := len(r.List()); got != 1 {
		t.Errorf("List() length = %d, want 1", got)
	}
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	r := newTestRegistry()

	descs := r.List()
	want := []string{"free-low", "free-high", "cheap", "premium", "quotes"}
	if len(descs) != len(want) {
		t.Fatalf("List() length = %d, want %d", len(descs), len(want))
	}
	for i, d := range descs {
		if d.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
}
