package quota

import "time"

// SetClock overrides the manager's time source for calendar-window tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
