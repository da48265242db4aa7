// Package update provides the shared deferred-execution facility behind
// entity updates. Each pending function is tracked under an id; scheduling
// the same id again replaces the previous timer instead of queueing a
// second run.
package update

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler runs deferred functions on timers. Cancellation is best-effort:
// a function already past its check point still completes, but no replaced
// or cancelled id will start.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]pending
	gen    uint64
	closed bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]pending)}
}

// Schedule arranges for fn to run after delay under the given id. A pending
// timer with the same id is stopped and replaced.
func (s *Scheduler) Schedule(id string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Warn().Str("id", id).Msg("Update scheduler closed, dropping schedule request")
		return
	}

	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
		log.Debug().Str("id", id).Msg("Replacing pending update")
	}

	s.gen++
	gen := s.gen

	timer := time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[id]
		if !ok || cur.gen != gen {
			// replaced or cancelled while firing
			s.mu.Unlock()
			return
		}
		delete(s.timers, id)
		s.mu.Unlock()

		fn()
	})

	s.timers[id] = pending{timer: timer, gen: gen}
}

// Cancel stops the pending timer for an id. Returns true if one was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.timers[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.timers, id)
	return true
}

// Stop cancels every pending timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
	s.closed = true
}
