// Package lockout throttles repeated failed logins for the active login
// surface. The state is local to one governor instance and never persisted;
// it is independent of any server-side account lock.
package lockout

import (
	"sync"
	"time"

	"cnc-operator-console/internal/clock"
)

const (
	DefaultMaxFailures  = 3
	DefaultLockDuration = 300 * time.Second
)

type Governor struct {
	mu           sync.Mutex
	clock        clock.Clock
	maxFailures  int
	lockDuration time.Duration

	consecutiveFailures int
	lockedUntil         time.Time
}

func NewGovernor(clk clock.Clock, maxFailures int, lockDuration time.Duration) *Governor {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	return &Governor{clock: clk, maxFailures: maxFailures, lockDuration: lockDuration}
}

// Allow reports whether a login attempt may proceed. While locked it
// returns false with the remaining lockout duration, and the caller must
// not touch the auth service at all. When the lockout window has elapsed
// the governor resets itself and re-enables submission.
func (g *Governor) Allow() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lockedUntil.IsZero() {
		return true, 0
	}

	remaining := g.lockedUntil.Sub(g.clock.Now())
	if remaining > 0 {
		return false, remaining
	}

	g.lockedUntil = time.Time{}
	g.consecutiveFailures = 0
	return true, 0
}

// RecordFailure counts one failed attempt. Exactly the maxFailures-th
// consecutive failure trips the lock; the return values report whether the
// lock is now engaged and how long it lasts.
func (g *Governor) RecordFailure() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lockedUntil.IsZero() {
		// Already locked; failures recorded while locked do not extend it.
		return true, g.lockedUntil.Sub(g.clock.Now())
	}

	g.consecutiveFailures++
	if g.consecutiveFailures >= g.maxFailures {
		g.lockedUntil = g.clock.Now().Add(g.lockDuration)
		return true, g.lockDuration
	}
	return false, 0
}

// RecordSuccess resets the failure counter. A success at any count clears
// the slate.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFailures = 0
	g.lockedUntil = time.Time{}
}

// Remaining returns how much lockout time is left, counting down to zero.
func (g *Governor) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lockedUntil.IsZero() {
		return 0
	}
	remaining := g.lockedUntil.Sub(g.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Failures returns the current consecutive-failure count.
func (g *Governor) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consecutiveFailures
}
