package permission

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestChecker(t *testing.T, cfg CheckerConfig) *Checker {
	t.Helper()
	return NewChecker(cfg, slog.New(slog.DiscardHandler))
}

func TestLevelOrdering(t *testing.T) {
	require.True(t, LevelNone < LevelRead)
	require.True(t, LevelRead < LevelExecute)
	require.True(t, LevelExecute < LevelWrite)
	require.True(t, LevelWrite < LevelOwner)
	require.True(t, LevelOwner < LevelRoot)
}

func TestParseLevelDefaultsToRoot(t *testing.T) {
	require.Equal(t, LevelWrite, ParseLevel("write"))
	require.Equal(t, LevelNone, ParseLevel("none"))
	require.Equal(t, LevelRoot, ParseLevel("bogus"))
}

func TestRequiredLevelLongestPrefixWins(t *testing.T) {
	c := newTestChecker(t, CheckerConfig{Prefixes: []PrivilegedPrefix{
		{Prefix: "/var", Required: LevelRead, SudoApproved: false},
		{Prefix: "/var/log", Required: LevelWrite, SudoApproved: true},
	}})

	level, approved := c.RequiredLevel("/var/log/aegis.log")
	require.Equal(t, LevelWrite, level)
	require.True(t, approved)

	level, approved = c.RequiredLevel("/var/lib/thing")
	require.Equal(t, LevelRead, level)
	require.False(t, approved)

	level, _ = c.RequiredLevel("/home/alice/file")
	require.Equal(t, LevelNone, level)
}

func TestCheckOwnedPath(t *testing.T) {
	c := newTestChecker(t, CheckerConfig{Prefixes: []PrivilegedPrefix{}})
	dir := t.TempDir()

	// A path we own satisfies an owner-level requirement whether the test
	// runs privileged or not.
	res := c.Check(dir, LevelOwner)
	require.True(t, res.Granted)
	require.False(t, res.CacheHit)
	require.GreaterOrEqual(t, res.Actual, LevelOwner)
}

func TestCheckMissingPathDenied(t *testing.T) {
	c := newTestChecker(t, CheckerConfig{Prefixes: []PrivilegedPrefix{}})
	c.geteuid = func() int { return 1000 }

	res := c.Check(filepath.Join(t.TempDir(), "does-not-exist"), LevelRead)
	require.False(t, res.Granted)
	require.Equal(t, LevelNone, res.Actual)
}

func TestCheckUsesTableRequirement(t *testing.T) {
	dir := t.TempDir()
	c := newTestChecker(t, CheckerConfig{Prefixes: []PrivilegedPrefix{
		{Prefix: dir, Required: LevelRoot},
	}})
	c.geteuid = func() int { return 1000 }

	// Caller asked for read, but the table escalates the requirement to
	// root for this prefix.
	res := c.Check(filepath.Join(dir, "f"), LevelRead)
	require.Equal(t, LevelRoot, res.Required)
	require.False(t, res.Granted)
}

func TestCheckCachesProbes(t *testing.T) {
	c := newTestChecker(t, CheckerConfig{ProbeTTL: time.Minute, Prefixes: []PrivilegedPrefix{}})
	dir := t.TempDir()

	first := c.Check(dir, LevelRead)
	require.False(t, first.CacheHit)
	second := c.Check(dir, LevelRead)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Granted, second.Granted)

	// A different required level is a different cache key.
	third := c.Check(dir, LevelOwner)
	require.False(t, third.CacheHit)
}
