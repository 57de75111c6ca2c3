// Package cache implements the dual-tier response cache: a bounded
// in-process TTL map in front of a persistent sqlite file. Lookups check
// memory first, then sqlite (promoting hits back into memory); writes land
// in both tiers. Every failure inside the cache degrades to a miss; the
// cache never turns a healthy fetch into an error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
	"github.com/rs/zerolog/log"
)

// Key derives the deterministic cache key for a fetch. Requests that
// normalize to the same query with the same capability, result count and
// forced provider share one entry.
func Key(query string, capability models.Capability, resultCount int, provider string) string {
	joined := strings.Join([]string{
		models.NormalizeQuery(query),
		string(capability),
		strconv.Itoa(resultCount),
		provider,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// Options configure the store. Zero values take the production defaults.
type Options struct {
	Dir        string        // holds fetch_cache.db
	TTL        time.Duration // persistent tier retention
	MemoryTTL  time.Duration // in-process tier retention
	MemorySize int           // in-process tier entry cap
}

func (o Options) normalize() Options {
	if o.TTL <= 0 {
		o.TTL = 720 * time.Hour
	}
	if o.MemoryTTL <= 0 {
		o.MemoryTTL = 5 * time.Minute
	}
	if o.MemorySize <= 0 {
		o.MemorySize = 512
	}
	return o
}

// Store is the dual-tier cache. Safe for concurrent use; duplicate
// concurrent writes resolve last-write-wins.
type Store struct {
	mem *memoryTier
	db  *sqliteTier
	ttl time.Duration
	now func() time.Time

	memHits        atomic.Int64
	persistentHits atomic.Int64
	misses         atomic.Int64
	expired        atomic.Int64
	writes         atomic.Int64
}

// Open creates the cache directory if needed and opens both tiers.
func Open(opts Options) (*Store, error) {
	opts = opts.normalize()
	if opts.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := openSQLite(filepath.Join(opts.Dir, "fetch_cache.db"))
	if err != nil {
		return nil, err
	}
	return &Store{
		mem: newMemoryTier(opts.MemoryTTL, opts.MemorySize, time.Now),
		db:  db,
		ttl: opts.TTL,
		now: time.Now,
	}, nil
}

// Get returns the cached response for key, or (nil, false) on a miss.
// Expired and corrupt persistent rows are removed lazily on access.
func (s *Store) Get(key string) (*models.FetchResponse, bool) {
	if payload, ok := s.mem.get(key); ok {
		resp, err := decode(payload)
		if err == nil {
			s.memHits.Add(1)
			return resp, true
		}
		log.Warn().Err(err).Msg("Corrupt memory cache entry, treating as miss")
	}

	payload, createdAt, ok, err := s.db.get(key)
	if err != nil {
		log.Warn().Err(err).Msg("Cache read failed, treating as miss")
		s.misses.Add(1)
		return nil, false
	}
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	if s.now().UTC().Sub(createdAt) > s.ttl {
		if err := s.db.delete(key); err != nil {
			log.Warn().Err(err).Msg("Failed to delete expired cache row")
		}
		s.expired.Add(1)
		s.misses.Add(1)
		return nil, false
	}
	resp, err := decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Corrupt cache payload, treating as miss")
		if derr := s.db.delete(key); derr != nil {
			log.Warn().Err(derr).Msg("Failed to delete corrupt cache row")
		}
		s.misses.Add(1)
		return nil, false
	}

	s.mem.set(key, payload) // promote
	s.persistentHits.Add(1)
	return resp, true
}

// Put stores a response under key in both tiers. Callers only pass
// successful responses; write failures are logged and swallowed.
func (s *Store) Put(key string, resp *models.FetchResponse) {
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode response for cache")
		return
	}
	s.mem.set(key, payload)
	err = s.db.put(key, resp.Query, string(resp.Capability), resp.Provider, payload, resp.Cost, s.now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("Cache write failed")
		return
	}
	s.writes.Add(1)
}

// Purge removes expired entries from both tiers immediately and reports
// how many were dropped.
func (s *Store) Purge() (int64, error) {
	removed := int64(s.mem.sweep())
	cutoff := s.now().UTC().Add(-s.ttl)
	dbRemoved, err := s.db.sweep(cutoff)
	if err != nil {
		return removed, err
	}
	removed += dbRemoved
	s.expired.Add(removed)
	return removed, nil
}

// StartJanitor sweeps expired entries on an interval until ctx is
// cancelled. The first sweep runs immediately. Run it on its own
// goroutine.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	log.Info().Dur("interval", interval).Msg("🧹 Cache janitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.janitorSweep()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Cache janitor stopped")
			return
		case <-ticker.C:
			s.janitorSweep()
		}
	}
}

func (s *Store) janitorSweep() {
	removed, err := s.Purge()
	if err != nil {
		log.Warn().Err(err).Msg("Cache sweep failed")
		return
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Cache sweep dropped expired entries")
	}
}

// Stats returns activity counters for both tiers.
func (s *Store) Stats() models.CacheStats {
	persistent, err := s.db.count()
	if err != nil {
		log.Warn().Err(err).Msg("Cache row count failed")
	}
	return models.CacheStats{
		MemoryEntries:     s.mem.len(),
		MemoryHits:        s.memHits.Load(),
		PersistentEntries: persistent,
		PersistentHits:    s.persistentHits.Load(),
		Misses:            s.misses.Load(),
		Expired:           s.expired.Load(),
		Writes:            s.writes.Load(),
		Evictions:         s.mem.evicted(),
	}
}

// Close releases both sqlite handles.
func (s *Store) Close() error {
	return s.db.close()
}

func decode(payload []byte) (*models.FetchResponse, error) {
	var resp models.FetchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding cache payload: %w", err)
	}
	return &resp, nil
}
