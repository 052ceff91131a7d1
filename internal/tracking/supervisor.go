package tracking

import (
	"sync"
	"time"
)

// DeactivateFunc tears down a driving session when the idle window elapses.
type DeactivateFunc func(driverID, fleetID string)

// IdleSupervisor keeps one pending deactivation timer per driver. Arming a
// timer atomically replaces any previous one for the same driver, so at most
// one deactivation callback can ever be outstanding per driver.
type IdleSupervisor struct {
	window     time.Duration
	deactivate DeactivateFunc

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewIdleSupervisor creates a supervisor firing deactivate after window of
// inactivity.
func NewIdleSupervisor(window time.Duration, deactivate DeactivateFunc) *IdleSupervisor {
	return &IdleSupervisor{
		window:     window,
		deactivate: deactivate,
		timers:     make(map[string]*time.Timer),
	}
}

// Arm starts the idle countdown for a driver, replacing any countdown already
// running. Every accepted ping calls Arm again, making the window a sliding
// inactivity timeout.
func (s *IdleSupervisor) Arm(driverID, fleetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(driverID, fleetID)
}

// armLocked requires s.mu to be held. Stop on an already-fired timer returns
// false without stopping its callback, which may be blocked on s.mu; the
// callback re-checks that it still owns the driver's slot before acting so a
// stale timer replaced by a later Arm becomes a no-op.
func (s *IdleSupervisor) armLocked(driverID, fleetID string) {
	if prev, ok := s.timers[driverID]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.window, func() {
		s.mu.Lock()
		if s.timers[driverID] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, driverID)
		s.mu.Unlock()
		s.deactivate(driverID, fleetID)
	})
	s.timers[driverID] = t
}

// Cancel drops the driver's pending countdown, if any.
func (s *IdleSupervisor) Cancel(driverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[driverID]; ok {
		t.Stop()
		delete(s.timers, driverID)
	}
}

// Pending reports whether a countdown is outstanding for the driver.
func (s *IdleSupervisor) Pending(driverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[driverID]
	return ok
}

// Shutdown cancels every outstanding countdown.
func (s *IdleSupervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
