package authz

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Service {
	t.Helper()
	return NewService(Config{}, slog.New(slog.DiscardHandler))
}

func mustUser(t *testing.T, s *Service, id string, roles ...string) {
	t.Helper()
	require.NoError(t, s.CreateUser(User{ID: id, Username: id, Active: true}))
	for _, r := range roles {
		require.NoError(t, s.AssignRole(id, r))
	}
}

func TestBuiltinRoleScenarios(t *testing.T) {
	s := newTestEngine(t)
	mustUser(t, s, "g", RoleGuest)
	mustUser(t, s, "op", RoleOperator)
	mustUser(t, s, "adm", RoleAdmin)

	ctx := context.Background()

	// guest can read threats but never write them.
	require.True(t, s.Authorize(ctx, Request{UserID: "g", Resource: "threats", Action: "read"}).Allowed)
	d := s.Authorize(ctx, Request{UserID: "g", Resource: "threats", Action: "write"})
	require.False(t, d.Allowed)

	// operator defines quarantine:create directly.
	require.True(t, s.Authorize(ctx, Request{UserID: "op", Resource: "quarantine", Action: "create"}).Allowed)

	// system:admin lives only on super_admin and is not inherited downward.
	require.False(t, s.Authorize(ctx, Request{UserID: "adm", Resource: "system", Action: "admin"}).Allowed)
}

func TestTransitiveInheritance(t *testing.T) {
	s := newTestEngine(t)
	mustUser(t, s, "root", RoleSuperAdmin)

	perms, err := s.EffectivePermissions("root")
	require.NoError(t, err)

	// The whole chain folds in: guest through super_admin.
	for _, want := range []string{"threats:read", "scans:create", "quarantine:create", "users:manage", "system:admin"} {
		require.Contains(t, perms, want)
	}
}

func TestCustomRoleInheritanceResolves(t *testing.T) {
	s := newTestEngine(t)
	require.NoError(t, s.CreateRole(Role{Name: "r3", Permissions: []string{"logs:read"}}))
	require.NoError(t, s.CreateRole(Role{Name: "r2", Permissions: []string{"logs:export"}, InheritsFrom: []string{"r3"}}))
	require.NoError(t, s.CreateRole(Role{Name: "r1", Permissions: []string{"logs:delete"}, InheritsFrom: []string{"r2", "r3"}}))

	mustUser(t, s, "u", "r1")
	perms, err := s.EffectivePermissions("u")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"logs:read", "logs:export", "logs:delete"}, perms)
}

func TestCreateRoleRejectsCycle(t *testing.T) {
	s := newTestEngine(t)

	// Forward reference: "b" names "a" before it exists (warned, kept).
	require.NoError(t, s.CreateRole(Role{Name: "b", InheritsFrom: []string{"a"}}))

	// Creating "a" inheriting "b" would close the cycle a -> b -> a.
	err := s.CreateRole(Role{Name: "a", InheritsFrom: []string{"b"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")

	// System roles cannot be deleted; duplicate names are rejected.
	require.Error(t, s.DeleteRole(RoleAdmin))
	require.Error(t, s.CreateRole(Role{Name: "b"}))
}

func TestResolutionTerminatesOnCorruptedGraph(t *testing.T) {
	s := newTestEngine(t)
	require.NoError(t, s.CreateRole(Role{Name: "x", Permissions: []string{"a:b"}}))
	require.NoError(t, s.CreateRole(Role{Name: "y", Permissions: []string{"c:d"}, InheritsFrom: []string{"x"}}))

	// Corrupt the graph behind the API to simulate out-of-band damage;
	// the visited-set guard must still terminate.
	s.mu.Lock()
	s.roles["x"].InheritsFrom = []string{"y"}
	s.mu.Unlock()

	mustUser(t, s, "u", "y")
	perms, err := s.EffectivePermissions("u")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a:b", "c:d"}, perms)
}

func TestUnknownRoleSkippedNotFatal(t *testing.T) {
	s := newTestEngine(t)
	require.NoError(t, s.CreateUser(User{ID: "u", Active: true, Roles: []string{"ghost", RoleGuest}}))

	// The unknown role is logged and skipped; guest still resolves.
	perms, err := s.EffectivePermissions("u")
	require.NoError(t, err)
	require.Contains(t, perms, "threats:read")
}

func TestDeniedForInactiveAndLocked(t *testing.T) {
	s := newTestEngine(t)
	ctx := context.Background()

	d := s.Authorize(ctx, Request{UserID: "missing", Resource: "threats", Action: "read"})
	require.False(t, d.Allowed)
	require.Equal(t, "unknown user", d.Reason)

	mustUser(t, s, "u", RoleUser)
	require.NoError(t, s.SetUserStatus("u", false, false))
	d = s.Authorize(ctx, Request{UserID: "u", Resource: "threats", Action: "read"})
	require.False(t, d.Allowed)
	require.Equal(t, "user inactive", d.Reason)

	require.NoError(t, s.SetUserStatus("u", true, true))
	d = s.Authorize(ctx, Request{UserID: "u", Resource: "threats", Action: "read"})
	require.False(t, d.Allowed)
	require.Equal(t, "user locked", d.Reason)
}

func TestCacheHitAndTargetedInvalidation(t *testing.T) {
	s := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, s, "u1", RoleGuest)
	mustUser(t, s, "u2", RoleGuest)

	req1 := Request{UserID: "u1", Resource: "threats", Action: "read"}
	req2 := Request{UserID: "u2", Resource: "threats", Action: "read"}

	require.False(t, s.Authorize(ctx, req1).CacheHit)
	require.True(t, s.Authorize(ctx, req1).CacheHit)
	require.False(t, s.Authorize(ctx, req2).CacheHit)
	require.True(t, s.Authorize(ctx, req2).CacheHit)

	// Role change for u1 invalidates only u1's entries.
	require.NoError(t, s.AssignRole("u1", RoleOperator))
	d := s.Authorize(ctx, req1)
	require.False(t, d.CacheHit)
	require.True(t, s.Authorize(ctx, req2).CacheHit)
}

func TestDirectPermissionOverride(t *testing.T) {
	s := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, s, "u", RoleGuest)

	require.False(t, s.Authorize(ctx, Request{UserID: "u", Resource: "quarantine", Action: "create"}).Allowed)
	require.NoError(t, s.GrantPermission("u", "quarantine:create"))
	require.True(t, s.Authorize(ctx, Request{UserID: "u", Resource: "quarantine", Action: "create"}).Allowed)

	require.NoError(t, s.RevokePermission("u", "quarantine:create"))
	require.False(t, s.Authorize(ctx, Request{UserID: "u", Resource: "quarantine", Action: "create"}).Allowed)
}

func TestWildcardPermissions(t *testing.T) {
	s := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, s, "u")
	require.NoError(t, s.GrantPermission("u", "scans:*"))

	require.True(t, s.Authorize(ctx, Request{UserID: "u", Resource: "scans", Action: "anything"}).Allowed)
	require.False(t, s.Authorize(ctx, Request{UserID: "u", Resource: "threats", Action: "read"}).Allowed)
}

func TestPoliciesAnnotateAndRestrict(t *testing.T) {
	s := newTestEngine(t)
	s.AddPolicy(AfterHoursPolicy{StartHour: 8, EndHour: 18, RestrictActions: []string{"delete"}})
	s.AddPolicy(HighPrivilegePolicy{})
	ctx := context.Background()
	mustUser(t, s, "op", RoleOperator)

	night := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Restricted action outside the window is denied despite the grant.
	d := s.Authorize(ctx, Request{UserID: "op", Resource: "quarantine", Action: "delete", At: night})
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "after_hours")
	require.Contains(t, d.Policies, "after_hours")
	require.Contains(t, d.Policies, "high_privilege_action")

	// Same action inside the window passes with only the annotation.
	d = s.Authorize(ctx, Request{UserID: "op", Resource: "quarantine", Action: "create", At: day})
	require.True(t, d.Allowed)
	require.NotContains(t, d.Policies, "after_hours")
}

func TestPolicyNeverGrants(t *testing.T) {
	s := newTestEngine(t)
	s.AddPolicy(HighPrivilegePolicy{})
	ctx := context.Background()
	mustUser(t, s, "g", RoleGuest)

	d := s.Authorize(ctx, Request{UserID: "g", Resource: "system", Action: "admin"})
	require.False(t, d.Allowed)
	require.Contains(t, d.Policies, "high_privilege_action")
}

func TestTimePolicyReevaluatedOnCacheHit(t *testing.T) {
	s := newTestEngine(t)
	s.AddPolicy(AfterHoursPolicy{StartHour: 8, EndHour: 18, RestrictActions: []string{"delete"}})
	ctx := context.Background()
	mustUser(t, s, "op", RoleOperator)

	night := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := s.Authorize(ctx, Request{UserID: "op", Resource: "quarantine", Action: "delete", At: night})
	require.False(t, d.Allowed)

	// The same question during the day must not inherit the cached
	// night-time restriction.
	d = s.Authorize(ctx, Request{UserID: "op", Resource: "quarantine", Action: "delete", At: day})
	require.True(t, d.Allowed)
	require.True(t, d.CacheHit)
	require.NotContains(t, d.Policies, "after_hours")

	// And the other way round: a daytime answer in the cache still
	// restricts at night.
	d = s.Authorize(ctx, Request{UserID: "op", Resource: "quarantine", Action: "delete", At: night})
	require.False(t, d.Allowed)
	require.True(t, d.CacheHit)
	require.Contains(t, d.Reason, "after_hours")
}
