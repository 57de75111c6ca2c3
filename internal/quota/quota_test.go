package quota_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/quota"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

func dailyDescriptor(name string, limit int) models.ProviderDescriptor {
	return models.ProviderDescriptor{
		Name:       name,
		Capability: models.CapabilitySearch,
		QuotaKind:  models.QuotaDaily,
		QuotaLimit: limit,
	}
}

func TestDailyQuotaExhaustion(t *testing.T) {
	m := quota.NewManager()
	m.Configure(dailyDescriptor("keyed", 2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.Acquire(ctx, "keyed"); err != nil {
			t.Fatalf("Acquire #%d error = %v", i+1, err)
		}
	}
	if m.Admissible("keyed") {
		t.Error("Admissible() = true after limit consumed, want false")
	}

	err := m.Acquire(ctx, "keyed")
	var exhausted *quota.ErrExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("Acquire over limit error = %v, want *quota.ErrExhausted", err)
	}
	if exhausted.Provider != "keyed" {
		t.Errorf("ErrExhausted.Provider = %q, want %q", exhausted.Provider, "keyed")
	}
	if exhausted.ResetAt.IsZero() {
		t.Error("ErrExhausted.ResetAt is zero, want next window boundary")
	}
}

func TestDailyQuotaResetsAtMidnight(t *testing.T) {
	now := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	m := quota.NewManager()
	m.SetClock(func() time.Time { return now })
	m.Configure(dailyDescriptor("keyed", 1))

	if err := m.Acquire(context.Background(), "keyed"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if m.Admissible("keyed") {
		t.Fatal("Admissible() = true after exhaustion, want false")
	}

	now = now.Add(3 * time.Hour) // past midnight UTC
	if !m.Admissible("keyed") {
		t.Fatal("Admissible() = false after window rollover, want true")
	}
	snap := m.Snapshot("keyed")
	if snap.Used != 0 {
		t.Errorf("Snapshot().Used = %d after rollover, want 0", snap.Used)
	}
	wantReset := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	if !snap.ResetAt.Equal(wantReset) {
		t.Errorf("Snapshot().ResetAt = %v, want %v", snap.ResetAt, wantReset)
	}
}

func TestDailyQuotaRollsMultipleWindows(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m := quota.NewManager()
	m.SetClock(func() time.Time { return now })
	m.Configure(dailyDescriptor("keyed", 1))

	// Idle for four days: the gate must land on the current day's boundary,
	// not one window past configuration time.
	now = now.Add(4 * 24 * time.Hour)
	snap := m.Snapshot("keyed")
	wantReset := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !snap.ResetAt.Equal(wantReset) {
		t.Errorf("Snapshot().ResetAt = %v, want %v", snap.ResetAt, wantReset)
	}
}

func TestMonthlyQuotaWindow(t *testing.T) {
	now := time.Date(2025, 1, 31, 18, 0, 0, 0, time.UTC)
	m := quota.NewManager()
	m.SetClock(func() time.Time { return now })
	m.Configure(models.ProviderDescriptor{
		Name:       "metered",
		Capability: models.CapabilitySearch,
		QuotaKind:  models.QuotaMonthly,
		QuotaLimit: 1,
	})

	if err := m.Acquire(context.Background(), "metered"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if m.Admissible("metered") {
		t.Fatal("Admissible() = true after exhaustion, want false")
	}

	snap := m.Snapshot("metered")
	wantReset := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if !snap.ResetAt.Equal(wantReset) {
		t.Errorf("Snapshot().ResetAt = %v, want %v", snap.ResetAt, wantReset)
	}

	now = time.Date(2025, 2, 1, 0, 0, 1, 0, time.UTC)
	if !m.Admissible("metered") {
		t.Error("Admissible() = false after month rollover, want true")
	}
}

func TestRateGatePacesCalls(t *testing.T) {
	m := quota.NewManager()
	m.Configure(models.ProviderDescriptor{
		Name:       "paced",
		Capability: models.CapabilitySearch,
		QuotaKind:  models.QuotaRate,
		QuotaLimit: 1,
		RatePeriod: 30 * time.Millisecond,
	})
	ctx := context.Background()

	start := time.Now()
	if err := m.Acquire(ctx, "paced"); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if err := m.Acquire(ctx, "paced"); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("two acquires took %v, want a paced wait of roughly the period", elapsed)
	}

	// Rate gates never block admission decisions.
	if !m.Admissible("paced") {
		t.Error("Admissible() = false for rate gate, want true")
	}
}

func TestRateGateHonorsContext(t *testing.T) {
	m := quota.NewManager()
	m.Configure(models.ProviderDescriptor{
		Name:       "paced",
		Capability: models.CapabilitySearch,
		QuotaKind:  models.QuotaRate,
		QuotaLimit: 1,
		RatePeriod: time.Minute,
	})

	if err := m.Acquire(context.Background(), "paced"); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Acquire(ctx, "paced"); err == nil {
		t.Fatal("Acquire() with expiring context error = nil, want deadline error")
	}
}

func TestUnconfiguredProviderIsUnlimited(t *testing.T) {
	m := quota.NewManager()

	if !m.Admissible("unknown") {
		t.Error("Admissible(unknown) = false, want true")
	}
	if err := m.Acquire(context.Background(), "unknown"); err != nil {
		t.Errorf("Acquire(unknown) error = %v, want nil", err)
	}
	if snap := m.Snapshot("unknown"); snap.Kind != models.QuotaUnlimited {
		t.Errorf("Snapshot(unknown).Kind = %q, want %q", snap.Kind, models.QuotaUnlimited)
	}
}

func TestSnapshotReportsUsage(t *testing.T) {
	m := quota.NewManager()
	m.Configure(dailyDescriptor("keyed", 5))

	for i := 0; i < 3; i++ {
		if err := m.Acquire(context.Background(), "keyed"); err != nil {
			t.Fatalf("Acquire #%d error = %v", i+1, err)
		}
	}
	snap := m.Snapshot("keyed")
	if snap.Kind != models.QuotaDaily || snap.Limit != 5 || snap.Used != 3 {
		t.Errorf("Snapshot() = %+v, want daily 3/5", snap)
	}
}
