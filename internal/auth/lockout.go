package auth

import (
	"sync"
	"time"
)

type lockoutState struct {
	failures    int
	lockedUntil time.Time
}

// lockoutTracker counts consecutive failures per identifier and locks an
// identifier out after the configured threshold. A success clears both the
// counter and any active lockout.
type lockoutTracker struct {
	mu       sync.Mutex
	states   map[string]*lockoutState
	maxFails int
	duration time.Duration
}

func newLockoutTracker(maxFails int, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		states:   make(map[string]*lockoutState),
		maxFails: maxFails,
		duration: duration,
	}
}

// locked reports whether identifier is currently locked out and until when.
func (t *lockoutTracker) locked(identifier string) (bool, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[identifier]
	if !ok {
		return false, time.Time{}
	}
	if st.lockedUntil.IsZero() || time.Now().After(st.lockedUntil) {
		return false, time.Time{}
	}
	return true, st.lockedUntil
}

// recordFailure increments the counter and returns true when the failure
// crossed the lockout threshold.
func (t *lockoutTracker) recordFailure(identifier string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[identifier]
	if !ok {
		st = &lockoutState{}
		t.states[identifier] = st
	}
	st.failures++
	if st.failures >= t.maxFails {
		st.lockedUntil = time.Now().Add(t.duration)
		return true
	}
	return false
}

// recordSuccess clears the counter and any lockout for identifier.
func (t *lockoutTracker) recordSuccess(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, identifier)
}
