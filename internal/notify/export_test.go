package notify

import "time"

// SetBackoff shortens the retry settle time so delivery tests don't sleep
// for real seconds.
func (s *Service) SetBackoff(d time.Duration) { s.backoff = d }
