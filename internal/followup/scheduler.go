// Package followup schedules one cancellable reminder per session.
package followup

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock creates timers. RealClock uses the runtime timer; tests inject a
// fake that fires on demand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock schedules with time.AfterFunc.
type RealClock struct{}

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler keeps at most one armed timer per key. Arming a key cancels the
// timer already armed for it.
//
// Every arm gets a generation number, passed to the fire callback. A timer
// that was already firing when it got cancelled still runs its callback, so
// callers compare the generation they recorded against the one they receive.
//
// Thread-safety: Scheduler is safe for concurrent use.
type Scheduler struct {
	clock Clock

	mu     sync.Mutex
	timers map[string]entry
	gen    uint64
}

type entry struct {
	gen   uint64
	timer Timer
}

// New creates a scheduler using clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{clock: clock, timers: make(map[string]entry)}
}

// Arm schedules fire to run after delay, replacing any timer armed for key.
// Returns the generation of the new timer.
func (s *Scheduler) Arm(key string, delay time.Duration, fire func(gen uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	t := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[key]
		if !ok || cur.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		fire(gen)
	})
	s.timers[key] = entry{gen: gen, timer: t}
	return gen
}

// Disarm cancels the timer armed for key. Returns false if none was armed.
func (s *Scheduler) Disarm(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.timers[key]
	if !ok {
		return false
	}
	cur.timer.Stop()
	delete(s.timers, key)
	return true
}

// Armed reports whether a timer is pending for key.
func (s *Scheduler) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cur := range s.timers {
		cur.timer.Stop()
		delete(s.timers, key)
	}
}
