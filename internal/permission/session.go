package permission

import (
	"sync"
	"time"
)

// sessionEntry tracks one (identity, method) escalation session. Entries
// carry their own lock so unrelated identities never serialize.
type sessionEntry struct {
	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
	lastSuccess time.Time
}

type sessionTracker struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry

	maxFailures   int
	sessionWindow time.Duration
	reuseWindow   time.Duration
}

func newSessionTracker(maxFailures int, sessionWindow, reuseWindow time.Duration) *sessionTracker {
	return &sessionTracker{
		entries:       make(map[string]*sessionEntry),
		maxFailures:   maxFailures,
		sessionWindow: sessionWindow,
		reuseWindow:   reuseWindow,
	}
}

func (t *sessionTracker) entry(key string) *sessionEntry {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[key]; ok {
		return e
	}
	e = &sessionEntry{}
	t.entries[key] = e
	return e
}

// locked reports whether the pair is locked out. An expired lockout also
// clears the stale failure counter so the next window starts clean.
func (t *sessionTracker) locked(key string) (bool, time.Time) {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lockedUntil.IsZero() {
		return false, time.Time{}
	}
	if time.Now().After(e.lockedUntil) {
		e.lockedUntil = time.Time{}
		e.failures = 0
		return false, time.Time{}
	}
	return true, e.lockedUntil
}

// reusable reports whether a recent successful elevation is still inside
// the re-use window.
func (t *sessionTracker) reusable(key string) bool {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.lastSuccess.IsZero() && time.Since(e.lastSuccess) < t.reuseWindow
}

// recordSuccess resets the failure counter and arms the re-use window.
func (t *sessionTracker) recordSuccess(key string) {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
	e.lockedUntil = time.Time{}
	e.lastSuccess = time.Now()
}

// recordFailure increments the counter and locks the pair out for the
// session window once the threshold is reached.
func (t *sessionTracker) recordFailure(key string) bool {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	if e.failures >= t.maxFailures {
		e.lockedUntil = time.Now().Add(t.sessionWindow)
		return true
	}
	return false
}

// sweep drops entries with no recent activity. Called by the maintenance
// worker.
func (t *sessionTracker) sweep() int {
	now := time.Now()
	removed := 0
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		e.mu.Lock()
		idle := e.failures == 0 &&
			(e.lockedUntil.IsZero() || now.After(e.lockedUntil)) &&
			(e.lastSuccess.IsZero() || now.Sub(e.lastSuccess) > t.reuseWindow)
		e.mu.Unlock()
		if idle {
			delete(t.entries, key)
			removed++
		}
	}
	return removed
}
