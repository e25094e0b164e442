// Package clock provides the injectable time source used by the engine.
// Due-date and escalation math goes through a Clock so the scheduler is
// deterministically testable; production code uses System().
package clock

import (
	"sync"
	"time"
)

// Clock is the time source contract. All engine timestamps are UTC.
type Clock interface {
	Now() time.Time
}

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Fake is a manually-advanced Clock for tests. Safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a Fake clock frozen at the given instant.
func NewFake(at time.Time) *Fake {
	return &Fake{now: at.UTC()}
}

// Now returns the fake's current instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the fake clock to the given instant.
func (f *Fake) Set(at time.Time) {
	f.mu.Lock()
	f.now = at.UTC()
	f.mu.Unlock()
}
