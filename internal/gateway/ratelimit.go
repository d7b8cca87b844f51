package gateway

import (
	"log/slog"
	"sync"
	"time"
)

// burstWindow is the fixed window for burst ceilings.
const burstWindow = 10 * time.Second

// DefaultRateLimitRules returns the built-in rule set.
func DefaultRateLimitRules() []RateLimitRule {
	return []RateLimitRule{
		{Name: "default", PerMinute: 60, PerHour: 1000, Burst: 10, Window: time.Hour, Enabled: true},
		{Name: "authentication", PerMinute: 10, PerHour: 100, Burst: 5, Window: time.Hour, Enabled: true},
		{Name: "file_operations", PerMinute: 30, PerHour: 500, Burst: 8, Window: time.Hour, Enabled: true},
	}
}

// window is the rolling timestamp deque for one (identifier, rule) pair.
// Each window carries its own lock so unrelated identifiers never
// serialize on a global mutex.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter implements sliding-window rate limiting with a per-identifier
// lockout on minute or hour violations. Burst violations reject the
// request but do not trigger lockout. The limiter fails open on internal
// error, favoring availability.
type Limiter struct {
	logger          *slog.Logger
	lockoutDuration time.Duration

	rulesMu sync.RWMutex
	rules   map[string]RateLimitRule

	winMu   sync.RWMutex
	windows map[string]*window

	lockMu   sync.Mutex
	lockouts map[string]time.Time
}

// NewLimiter constructs a Limiter over the given rules.
func NewLimiter(rules []RateLimitRule, lockoutDuration time.Duration, logger *slog.Logger) *Limiter {
	if lockoutDuration <= 0 {
		lockoutDuration = 15 * time.Minute
	}
	l := &Limiter{
		logger:          logger,
		lockoutDuration: lockoutDuration,
		rules:           make(map[string]RateLimitRule, len(rules)),
		windows:         make(map[string]*window),
		lockouts:        make(map[string]time.Time),
	}
	for _, r := range rules {
		l.rules[r.Name] = r
	}
	return l
}

// Check records one request for identifier under the named rule and
// reports whether it is allowed. The deque is pruned of entries older than
// the rule window on every check; minute, hour, and burst ceilings are
// evaluated independently and any violation rejects the request.
func (l *Limiter) Check(identifier, ruleName string) (allowed bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			// Availability over precision: an internal limiter fault
			// must not take the API down.
			if l.logger != nil {
				l.logger.Error("rate limiter internal fault, failing open", "panic", r)
			}
			allowed = true
			reason = ""
		}
	}()

	if locked, _ := l.lockedOut(identifier); locked {
		return false, "identifier_locked_out"
	}

	rule, ok := l.rule(ruleName)
	if !ok {
		if l.logger != nil {
			l.logger.Error("unknown rate limit rule, failing open", "rule", ruleName)
		}
		return true, ""
	}
	if !rule.Enabled {
		return true, ""
	}

	now := time.Now()
	w := l.window(identifier + "|" + rule.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	// Prune entries older than the rule window.
	cutoff := now.Add(-rule.Window)
	keep := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	w.stamps = keep

	var minuteCount, hourCount, burstCount int
	minuteCutoff := now.Add(-time.Minute)
	hourCutoff := now.Add(-time.Hour)
	burstCutoff := now.Add(-burstWindow)
	for _, ts := range w.stamps {
		if ts.After(hourCutoff) {
			hourCount++
		}
		if ts.After(minuteCutoff) {
			minuteCount++
		}
		if ts.After(burstCutoff) {
			burstCount++
		}
	}

	switch {
	case rule.PerMinute > 0 && minuteCount >= rule.PerMinute:
		l.lockOut(identifier)
		return false, "rate_limit_exceeded"
	case rule.PerHour > 0 && hourCount >= rule.PerHour:
		l.lockOut(identifier)
		return false, "rate_limit_exceeded"
	case rule.Burst > 0 && burstCount >= rule.Burst:
		// Burst violations reject without lockout.
		return false, "burst_limit_exceeded"
	}

	w.stamps = append(w.stamps, now)
	return true, ""
}

// LockedUntil reports an active lockout for identifier.
func (l *Limiter) LockedUntil(identifier string) (time.Time, bool) {
	locked, until := l.lockedOut(identifier)
	return until, locked
}

// ClearLockout removes an active lockout, for administrative unblocking.
func (l *Limiter) ClearLockout(identifier string) {
	l.lockMu.Lock()
	delete(l.lockouts, identifier)
	l.lockMu.Unlock()
}

// Sweep drops empty windows and expired lockouts; called by the worker.
func (l *Limiter) Sweep() int {
	removed := 0
	now := time.Now()

	l.lockMu.Lock()
	for id, until := range l.lockouts {
		if now.After(until) {
			delete(l.lockouts, id)
			removed++
		}
	}
	l.lockMu.Unlock()

	l.winMu.Lock()
	for key, w := range l.windows {
		w.mu.Lock()
		empty := len(w.stamps) == 0 || now.Sub(w.stamps[len(w.stamps)-1]) > time.Hour
		w.mu.Unlock()
		if empty {
			delete(l.windows, key)
			removed++
		}
	}
	l.winMu.Unlock()
	return removed
}

func (l *Limiter) rule(name string) (RateLimitRule, bool) {
	if name == "" {
		name = "default"
	}
	l.rulesMu.RLock()
	defer l.rulesMu.RUnlock()
	r, ok := l.rules[name]
	return r, ok
}

func (l *Limiter) window(key string) *window {
	l.winMu.RLock()
	w, ok := l.windows[key]
	l.winMu.RUnlock()
	if ok {
		return w
	}
	l.winMu.Lock()
	defer l.winMu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	w = &window{}
	l.windows[key] = w
	return w
}

func (l *Limiter) lockedOut(identifier string) (bool, time.Time) {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	until, ok := l.lockouts[identifier]
	if !ok {
		return false, time.Time{}
	}
	if time.Now().After(until) {
		delete(l.lockouts, identifier)
		return false, time.Time{}
	}
	return true, until
}

func (l *Limiter) lockOut(identifier string) {
	until := time.Now().Add(l.lockoutDuration)
	l.lockMu.Lock()
	l.lockouts[identifier] = until
	l.lockMu.Unlock()
	if l.logger != nil {
		l.logger.Warn("rate limit lockout", "identifier", identifier, "until", until)
	}
}
