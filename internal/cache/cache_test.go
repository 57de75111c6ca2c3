package cache_test

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/cache"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T, opts cache.Options) *cache.Store {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	s, err := cache.Open(opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResponse(query string) *models.FetchResponse {
	return &models.FetchResponse{
		Query:      query,
		Capability: models.CapabilitySearch,
		Items: []models.ResultItem{
			{Title: "Result one", URL: "https://example.com/1", Score: 0.9, Provider: "stub"},
			{Title: "Result two", URL: "https://example.com/2", Score: 0.7, Provider: "stub"},
		},
		Provider:  "stub",
		Cost:      0.001,
		Success:   true,
		FetchedAt: time.Now().UTC(),
	}
}

func TestKeyNormalizesQuery(t *testing.T) {
	a := cache.Key("  Acme   CORP ", models.CapabilitySearch, 10, "")
	b := cache.Key("acme corp", models.CapabilitySearch, 10, "")
	if a != b {
		t.Errorf("Key() differs across whitespace/case variants: %s vs %s", a, b)
	}
}

func TestKeyVariesByParameters(t *testing.T) {
	base := cache.Key("acme", models.CapabilitySearch, 10, "")
	variants := []string{
		cache.Key("acme", models.CapabilityNews, 10, ""),
		cache.Key("acme", models.CapabilitySearch, 5, ""),
		cache.Key("acme", models.CapabilitySearch, 10, "brave"),
		cache.Key("acme inc", models.CapabilitySearch, 10, ""),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d produced the same key as the base request", i)
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, cache.Options{})
	key := cache.Key("acme corp", models.CapabilitySearch, 10, "")

	s.Put(key, sampleResponse("acme corp"))

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("Get() miss after Put()")
	}
	if got.Query != "acme corp" || len(got.Items) != 2 || got.Provider != "stub" {
		t.Errorf("Get() = %+v, want stored response", got)
	}

	stats := s.Stats()
	if stats.MemoryHits != 1 {
		t.Errorf("MemoryHits = %d, want 1", stats.MemoryHits)
	}
	if stats.Writes != 1 {
		t.Errorf("Writes = %d, want 1", stats.Writes)
	}
}

func TestGetMissWhenEmpty(t *testing.T) {
	s := newTestStore(t, cache.Options{})

	if _, ok := s.Get(cache.Key("nothing", models.CapabilityNews, 10, "")); ok {
		t.Fatal("Get() hit on empty cache")
	}
	if stats := s.Stats(); stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
}

func TestPersistentTierSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	key := cache.Key("acme corp", models.CapabilitySearch, 10, "")

	first := newTestStore(t, cache.Options{Dir: dir})
	first.Put(key, sampleResponse("acme corp"))
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := newTestStore(t, cache.Options{Dir: dir})
	got, ok := second.Get(key)
	if !ok {
		t.Fatal("Get() miss after reopen, want persistent hit")
	}
	if got.Query != "acme corp" {
		t.Errorf("Get().Query = %q, want %q", got.Query, "acme corp")
	}

	stats := second.Stats()
	if stats.PersistentHits != 1 {
		t.Errorf("PersistentHits = %d, want 1", stats.PersistentHits)
	}

	// The hit was promoted into memory.
	if _, ok := second.Get(key); !ok {
		t.Fatal("Get() miss on promoted entry")
	}
	if stats := second.Stats(); stats.MemoryHits != 1 {
		t.Errorf("MemoryHits after promotion = %d, want 1", stats.MemoryHits)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	s := newTestStore(t, cache.Options{TTL: time.Hour, MemoryTTL: time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	key := cache.Key("acme corp", models.CapabilitySearch, 10, "")
	s.Put(key, sampleResponse("acme corp"))

	now = now.Add(2 * time.Hour)
	if _, ok := s.Get(key); ok {
		t.Fatal("Get() hit on entry past TTL, want miss")
	}

	stats := s.Stats()
	if stats.Expired == 0 {
		t.Error("Expired = 0, want expired entry counted")
	}
	if stats.PersistentEntries != 0 {
		t.Errorf("PersistentEntries = %d after lazy delete, want 0", stats.PersistentEntries)
	}
}

func TestCorruptPersistentRowIsMiss(t *testing.T) {
	dir := t.TempDir()
	key := cache.Key("acme corp", models.CapabilitySearch, 10, "")

	first := newTestStore(t, cache.Options{Dir: dir})
	first.Put(key, sampleResponse("acme corp"))
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "fetch_cache.db"))
	if err != nil {
		t.Fatalf("opening db directly: %v", err)
	}
	if _, err := db.Exec(`UPDATE fetch_cache SET payload = ?`, []byte("{not json")); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}
	db.Close()

	second := newTestStore(t, cache.Options{Dir: dir})
	if _, ok := second.Get(key); ok {
		t.Fatal("Get() hit on corrupt payload, want miss")
	}
	// The corrupt row was dropped, not left to fail again.
	if stats := second.Stats(); stats.PersistentEntries != 0 {
		t.Errorf("PersistentEntries = %d after corrupt-row delete, want 0", stats.PersistentEntries)
	}
}

func TestMemoryTierBounded(t *testing.T) {
	s := newTestStore(t, cache.Options{MemorySize: 2})

	for _, q := range []string{"one", "two", "three"} {
		s.Put(cache.Key(q, models.CapabilitySearch, 10, ""), sampleResponse(q))
	}

	stats := s.Stats()
	if stats.MemoryEntries != 2 {
		t.Errorf("MemoryEntries = %d, want 2", stats.MemoryEntries)
	}
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if stats.PersistentEntries != 3 {
		t.Errorf("PersistentEntries = %d, want 3 (eviction only trims memory)", stats.PersistentEntries)
	}
}

func TestPurgeDropsOnlyExpired(t *testing.T) {
	s := newTestStore(t, cache.Options{TTL: time.Hour})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	s.Put(cache.Key("old one", models.CapabilitySearch, 10, ""), sampleResponse("old one"))
	s.Put(cache.Key("old two", models.CapabilitySearch, 10, ""), sampleResponse("old two"))

	now = now.Add(2 * time.Hour)
	s.Put(cache.Key("fresh", models.CapabilitySearch, 10, ""), sampleResponse("fresh"))

	removed, err := s.Purge()
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed == 0 {
		t.Fatal("Purge() removed nothing, want expired entries dropped")
	}
	if stats := s.Stats(); stats.PersistentEntries != 1 {
		t.Errorf("PersistentEntries = %d after purge, want 1", stats.PersistentEntries)
	}
	if _, ok := s.Get(cache.Key("fresh", models.CapabilitySearch, 10, "")); !ok {
		t.Error("fresh entry lost during purge")
	}
}

func TestPutOverwritesExisting(t *testing.T) {
	s := newTestStore(t, cache.Options{})
	key := cache.Key("acme corp", models.CapabilitySearch, 10, "")

	s.Put(key, sampleResponse("acme corp"))
	updated := sampleResponse("acme corp")
	updated.Items = updated.Items[:1]
	s.Put(key, updated)

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("Get() miss after overwrite")
	}
	if len(got.Items) != 1 {
		t.Errorf("Get() items = %d, want 1 (last write wins)", len(got.Items))
	}
	if stats := s.Stats(); stats.PersistentEntries != 1 {
		t.Errorf("PersistentEntries = %d, want 1", stats.PersistentEntries)
	}
}
