package lifecycle

import (
	"sync"
	"time"
)

// slot holds at most one pending task. Scheduling replaces the previous task
// atomically, and a firing whose generation is stale is discarded, so a stopped
// timer that already fired never runs its task.
type slot struct {
	mu    sync.Mutex
	clock Clock
	timer Timer
	gen   uint64
}

func newSlot(c Clock) *slot { return &slot{clock: c} }

func (s *slot) schedule(d time.Duration, f func()) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		f()
	})
}

func (s *slot) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *slot) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
