package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	payload    []byte
	expiresAt  time.Time
	lastAccess time.Time
}

// memoryTier is the in-process tier: a bounded TTL map in front of the
// persistent store so hot keys never touch sqlite. Entries are evicted
// least-recently-accessed when the map is full.
type memoryTier struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	ttl       time.Duration
	maxSize   int
	evictions int64
	now       func() time.Time
}

func newMemoryTier(ttl time.Duration, maxSize int, now func() time.Time) *memoryTier {
	return &memoryTier{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
	}
}

func (m *memoryTier) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	now := m.now()
	if now.After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	e.lastAccess = now
	return e.payload, true
}

func (m *memoryTier) set(key string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictColdest()
	}
	now := m.now()
	m.entries[key] = &memoryEntry{
		payload:    payload,
		expiresAt:  now.Add(m.ttl),
		lastAccess: now,
	}
}

// evictColdest drops the least recently accessed entry. Caller holds m.mu.
func (m *memoryTier) evictColdest() {
	var coldestKey string
	var coldest time.Time
	for key, e := range m.entries {
		if coldestKey == "" || e.lastAccess.Before(coldest) {
			coldestKey = key
			coldest = e.lastAccess
		}
	}
	if coldestKey != "" {
		delete(m.entries, coldestKey)
		m.evictions++
	}
}

// sweep removes expired entries and reports how many were dropped.
func (m *memoryTier) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryTier) evicted() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}
