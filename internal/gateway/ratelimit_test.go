package gateway

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestMinuteCeilingTriggersLockout(t *testing.T) {
	rules := []RateLimitRule{{Name: "default", PerMinute: 5, PerHour: 1000, Burst: 50, Window: time.Hour, Enabled: true}}
	l := NewLimiter(rules, 15*time.Minute, discard())

	for i := 0; i < 5; i++ {
		allowed, _ := l.Check("client-1", "default")
		require.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, reason := l.Check("client-1", "default")
	require.False(t, allowed)
	require.Equal(t, "rate_limit_exceeded", reason)

	until, locked := l.LockedUntil("client-1")
	require.True(t, locked)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), until, time.Second)

	// Subsequent requests are rejected by the lockout itself.
	allowed, reason = l.Check("client-1", "default")
	require.False(t, allowed)
	require.Equal(t, "identifier_locked_out", reason)
}

func TestIndependentIdentifiers(t *testing.T) {
	rules := []RateLimitRule{{Name: "default", PerMinute: 2, PerHour: 100, Burst: 50, Window: time.Hour, Enabled: true}}
	l := NewLimiter(rules, time.Minute, discard())

	for i := 0; i < 2; i++ {
		allowed, _ := l.Check("a", "default")
		require.True(t, allowed)
	}
	allowed, _ := l.Check("a", "default")
	require.False(t, allowed)

	// Identifier b has its own window.
	allowed, _ = l.Check("b", "default")
	require.True(t, allowed)
}

func TestBurstRejectsWithoutLockout(t *testing.T) {
	rules := []RateLimitRule{{Name: "default", PerMinute: 100, PerHour: 1000, Burst: 3, Window: time.Hour, Enabled: true}}
	l := NewLimiter(rules, 15*time.Minute, discard())

	for i := 0; i < 3; i++ {
		allowed, _ := l.Check("c", "default")
		require.True(t, allowed)
	}
	allowed, reason := l.Check("c", "default")
	require.False(t, allowed)
	require.Equal(t, "burst_limit_exceeded", reason)

	_, locked := l.LockedUntil("c")
	require.False(t, locked, "burst violations must not lock out")
}

func TestLockoutExpires(t *testing.T) {
	rules := []RateLimitRule{{Name: "default", PerMinute: 1, PerHour: 100, Burst: 50, Window: time.Hour, Enabled: true}}
	l := NewLimiter(rules, 20*time.Millisecond, discard())

	allowed, _ := l.Check("d", "default")
	require.True(t, allowed)
	allowed, _ = l.Check("d", "default")
	require.False(t, allowed)

	time.Sleep(30 * time.Millisecond)

	// Lockout expired; the minute window is still full though, so the
	// check re-evaluates ceilings rather than the stale lockout.
	_, locked := l.LockedUntil("d")
	require.False(t, locked)
}

func TestUnknownRuleFailsOpen(t *testing.T) {
	l := NewLimiter(nil, time.Minute, discard())
	allowed, _ := l.Check("e", "nonexistent")
	require.True(t, allowed)
}

func TestDisabledRuleAllows(t *testing.T) {
	rules := []RateLimitRule{{Name: "default", PerMinute: 1, Burst: 1, Window: time.Hour, Enabled: false}}
	l := NewLimiter(rules, time.Minute, discard())
	for i := 0; i < 10; i++ {
		allowed, _ := l.Check("f", "default")
		require.True(t, allowed)
	}
}

func TestRuleIsolationPerIdentifier(t *testing.T) {
	l := NewLimiter(DefaultRateLimitRules(), time.Minute, discard())

	// The authentication rule has a tighter burst ceiling than default.
	for i := 0; i < 5; i++ {
		allowed, _ := l.Check("g", "authentication")
		require.True(t, allowed, "auth request %d", i+1)
	}
	allowed, reason := l.Check("g", "authentication")
	require.False(t, allowed)
	require.Equal(t, "burst_limit_exceeded", reason)
}

func TestSweepDropsExpiredState(t *testing.T) {
	rules := []RateLimitRule{{Name: "default", PerMinute: 1, PerHour: 10, Burst: 5, Window: time.Hour, Enabled: true}}
	l := NewLimiter(rules, 10*time.Millisecond, discard())

	for i := 0; i < 2; i++ {
		l.Check(fmt.Sprintf("id-%d", i), "default")
		l.Check(fmt.Sprintf("id-%d", i), "default")
	}
	time.Sleep(20 * time.Millisecond)
	removed := l.Sweep()
	require.GreaterOrEqual(t, removed, 2) // the expired lockouts at minimum
}
