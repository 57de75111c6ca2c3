package breaker

import "time"

// SetClock overrides the breaker's time source so cooldown math can be
// tested without sleeping.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
