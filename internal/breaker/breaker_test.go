package breaker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/breaker"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (c *captureSink) Publish(ctx context.Context, event models.AlertEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) byKind(kind models.AlertKind) []models.AlertEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.AlertEvent
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// newTestBreaker returns a breaker on a manual clock. Move the clock by
// reassigning *now.
func newTestBreaker(t *testing.T, opts breaker.Options, alerts contracts.AlertSink) (*breaker.Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := breaker.New("flaky", opts, alerts)
	b.SetClock(func() time.Time { return now })
	return b, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(t, breaker.Options{FailureThreshold: 3}, nil)

	b.RecordFailure()
	b.RecordFailure()
	if got := b.State(); got != models.BreakerClosed {
		t.Fatalf("State() after 2 failures = %q, want %q", got, models.BreakerClosed)
	}
	if !b.Allow() {
		t.Fatal("Allow() = false below threshold, want true")
	}
	b.RecordFailure()

	if got := b.State(); got != models.BreakerOpen {
		t.Fatalf("State() after 3 failures = %q, want %q", got, models.BreakerOpen)
	}
	if b.Allow() {
		t.Error("Allow() = true while open, want false")
	}
	if b.Admissible() {
		t.Error("Admissible() = true while open, want false")
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(t, breaker.Options{FailureThreshold: 3}, nil)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess(50 * time.Millisecond)
	b.RecordFailure()
	b.RecordFailure()

	if got := b.State(); got != models.BreakerClosed {
		t.Errorf("State() = %q, want %q: success should zero the streak", got, models.BreakerClosed)
	}
}

func TestBreakerHalfOpenProbeBudget(t *testing.T) {
	b, now := newTestBreaker(t, breaker.Options{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		BaseCooldown:     time.Minute,
	}, nil)

	b.RecordFailure() // trips immediately
	if b.Allow() {
		t.Fatal("Allow() = true during cooldown, want false")
	}

	*now = now.Add(61 * time.Second)
	if !b.Admissible() {
		t.Fatal("Admissible() = false after cooldown elapsed, want true")
	}

	// Two probe slots (= success threshold), then the door shuts.
	if !b.Allow() {
		t.Fatal("first probe Allow() = false, want true")
	}
	if got := b.State(); got != models.BreakerHalfOpen {
		t.Fatalf("State() = %q, want %q", got, models.BreakerHalfOpen)
	}
	if !b.Allow() {
		t.Fatal("second probe Allow() = false, want true")
	}
	if b.Allow() {
		t.Error("third probe Allow() = true, want false: probe budget exhausted")
	}
	if b.Admissible() {
		t.Error("Admissible() = true with probes exhausted, want false")
	}
}

func TestBreakerClosesAfterProbeSuccesses(t *testing.T) {
	b, now := newTestBreaker(t, breaker.Options{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		BaseCooldown:     time.Minute,
	}, nil)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("probe #%d Allow() = false, want true", i+1)
		}
		b.RecordSuccess(20 * time.Millisecond)
	}
	if got := b.State(); got != models.BreakerClosed {
		t.Fatalf("State() after probe successes = %q, want %q", got, models.BreakerClosed)
	}

	// Recovery resets the cooldown to its base: the next trip waits one
	// minute again, not the doubled two.
	tripAt := now.Add(time.Hour)
	*now = tripAt
	b.RecordFailure()
	snap := b.Snapshot()
	if want := tripAt.Add(time.Minute); !snap.CooldownUntil.Equal(want) {
		t.Errorf("CooldownUntil = %v, want %v (base cooldown after recovery)", snap.CooldownUntil, want)
	}
}

func TestHalfOpenFailureReopensWithDoubledCooldown(t *testing.T) {
	b, now := newTestBreaker(t, breaker.Options{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		BaseCooldown:     time.Minute,
	}, nil)

	b.RecordFailure() // trip 1, next cooldown doubles to 2m
	*now = now.Add(2 * time.Minute)

	if !b.Allow() {
		t.Fatal("probe Allow() = false, want true")
	}
	reopenAt := *now
	b.RecordFailure() // probe failed, reopen immediately

	snap := b.Snapshot()
	if got := snap.State; got != models.BreakerOpen {
		t.Fatalf("State after probe failure = %q, want %q", got, models.BreakerOpen)
	}
	if snap.Trips != 2 {
		t.Errorf("Trips = %d, want 2", snap.Trips)
	}
	if want := reopenAt.Add(2 * time.Minute); !snap.CooldownUntil.Equal(want) {
		t.Errorf("CooldownUntil = %v, want %v (doubled cooldown)", snap.CooldownUntil, want)
	}
}

func TestCooldownGrowthIsCapped(t *testing.T) {
	b, now := newTestBreaker(t, breaker.Options{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		BaseCooldown:     30 * time.Minute,
		MaxCooldown:      time.Hour,
	}, nil)

	// Trip repeatedly through failed probes: 30m, 60m, then capped at 60m.
	wantCooldowns := []time.Duration{30 * time.Minute, time.Hour, time.Hour}
	for i, cooldown := range wantCooldowns {
		tripAt := *now
		b.RecordFailure()
		snap := b.Snapshot()
		if want := tripAt.Add(cooldown); !snap.CooldownUntil.Equal(want) {
			t.Fatalf("trip #%d CooldownUntil = %v, want %v", i+1, snap.CooldownUntil, want)
		}
		*now = now.Add(cooldown + time.Second)
		if !b.Allow() {
			t.Fatalf("trip #%d probe Allow() = false, want true", i+1)
		}
	}
}

func TestLatencyAverageSmoothing(t *testing.T) {
	b, _ := newTestBreaker(t, breaker.Options{}, nil)

	b.RecordSuccess(100 * time.Millisecond)
	if got := b.Snapshot().AvgLatencyMs; got != 100 {
		t.Fatalf("AvgLatencyMs after first call = %d, want 100", got)
	}

	// Weighted 70/30 toward history: (100*7 + 200*3) / 10 = 130.
	b.RecordSuccess(200 * time.Millisecond)
	if got := b.Snapshot().AvgLatencyMs; got != 130 {
		t.Errorf("AvgLatencyMs = %d, want 130", got)
	}
}

func TestSnapshotCountsCalls(t *testing.T) {
	b, _ := newTestBreaker(t, breaker.Options{FailureThreshold: 5}, nil)

	b.RecordSuccess(10 * time.Millisecond)
	b.RecordFailure()
	b.RecordFailure()

	snap := b.Snapshot()
	if snap.Provider != "flaky" {
		t.Errorf("Provider = %q, want %q", snap.Provider, "flaky")
	}
	if snap.TotalCalls != 3 || snap.TotalSuccesses != 1 {
		t.Errorf("TotalCalls/TotalSuccesses = %d/%d, want 3/1", snap.TotalCalls, snap.TotalSuccesses)
	}
	if snap.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", snap.ConsecutiveFailures)
	}
	if snap.LastSuccess.IsZero() || snap.LastFailure.IsZero() {
		t.Error("LastSuccess/LastFailure not recorded")
	}
}

func TestBreakerPublishesAlerts(t *testing.T) {
	sink := &captureSink{}
	b, now := newTestBreaker(t, breaker.Options{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		BaseCooldown:     time.Minute,
	}, sink)

	b.RecordFailure()
	*now = now.Add(2 * time.Minute)
	if !b.Allow() {
		t.Fatal("probe Allow() = false, want true")
	}
	b.RecordSuccess(5 * time.Millisecond)

	opened := sink.byKind(models.AlertBreakerOpened)
	if len(opened) != 1 {
		t.Fatalf("breaker-opened alerts = %d, want 1", len(opened))
	}
	if opened[0].Provider != "flaky" {
		t.Errorf("alert provider = %q, want %q", opened[0].Provider, "flaky")
	}
	recovered := sink.byKind(models.AlertBreakerRecovered)
	if len(recovered) != 1 {
		t.Fatalf("breaker-recovered alerts = %d, want 1", len(recovered))
	}
}

func TestGroupCreatesBreakersLazily(t *testing.T) {
	g := breaker.NewGroup(breaker.Options{}, nil)

	a := g.For("alpha")
	if again := g.For("alpha"); again != a {
		t.Error("For() returned a different breaker for the same provider")
	}
	g.For("beta")

	snaps := g.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("Snapshots() returned %d entries, want 2", len(snaps))
	}
	for name, snap := range snaps {
		if snap.State != models.BreakerClosed {
			t.Errorf("breaker %q state = %q, want %q", name, snap.State, models.BreakerClosed)
		}
	}
}
