package batch

import "sync"

// Sequencer hands out monotonically increasing tickets so that a slow batch
// started earlier cannot overwrite the result of a newer one.
type Sequencer struct {
	mu     sync.Mutex
	latest uint64
}

// Next issues a ticket for a new batch, making every earlier ticket stale.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

func (s *Sequencer) IsLatest(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ticket == s.latest
}

// Commit runs apply only if ticket is still the latest, and reports whether
// it did. apply runs under the sequencer lock and must not call back into it.
func (s *Sequencer) Commit(ticket uint64, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.latest {
		return false
	}
	apply()
	return true
}
