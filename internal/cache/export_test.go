package cache

import "time"

// SetClock overrides the store's time source for TTL tests. Both tiers
// share the injected clock.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
	s.mem.mu.Lock()
	s.mem.now = now
	s.mem.mu.Unlock()
}
