// Package authz implements role-based access control with inheritance.
// The engine exclusively owns role and user state; decisions are cached
// per (user, resource, action) and invalidated per user on mutation.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aegis-desktop/aegis/internal/platform/cache"
	"github.com/aegis-desktop/aegis/internal/shared"
)

// Config carries the engine tunables.
type Config struct {
	DecisionTTL time.Duration
}

// Service is the authorization engine.
type Service struct {
	cfg          Config
	logger       *slog.Logger
	cache        *cache.Memory
	sf           singleflight.Group
	policies     []Policy
	onInvalidate []func(userID string)

	mu    sync.RWMutex
	roles map[string]*Role
	users map[string]*User
}

// NewService constructs the engine with the built-in role chain installed.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if cfg.DecisionTTL <= 0 {
		cfg.DecisionTTL = 15 * time.Minute
	}
	s := &Service{
		cfg:    cfg,
		logger: logger,
		cache:  cache.NewMemory(),
		roles:  make(map[string]*Role),
		users:  make(map[string]*User),
	}
	for _, r := range builtinRoles(time.Now().UTC()) {
		s.roles[r.Name] = r
	}
	return s
}

// AddPolicy registers a context policy. Policies run after the base
// decision and may only annotate or restrict, never grant.
func (s *Service) AddPolicy(p Policy) {
	s.policies = append(s.policies, p)
}

// DecisionCache exposes the decision cache for the maintenance sweeper.
func (s *Service) DecisionCache() *cache.Memory { return s.cache }

// OnInvalidateUser registers a hook fired whenever a mutation drops a
// user's cached decisions. Downstream caches keyed on the same user
// (the coordinator's response cache) register here so a role change
// propagates in one step. Register at startup, before serving.
func (s *Service) OnInvalidateUser(fn func(userID string)) {
	s.onInvalidate = append(s.onInvalidate, fn)
}

// CreateRole adds a custom role. The inheritance graph is validated for
// cycles at creation time; resolution keeps its own visited-set guard as
// defense in depth.
func (s *Service) CreateRole(role Role) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("authz: role name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[role.Name]; exists {
		return fmt.Errorf("authz: role %q already exists", role.Name)
	}
	for _, parent := range role.InheritsFrom {
		if _, ok := s.roles[parent]; !ok {
			s.logger.Warn("role inherits from unknown role", "role", role.Name, "parent", parent)
			continue
		}
		if s.reachesLocked(parent, role.Name) {
			return fmt.Errorf("authz: role %q: inheritance cycle through %q", role.Name, parent)
		}
	}
	role.System = false
	role.CreatedAt = time.Now().UTC()
	s.roles[role.Name] = &role
	return nil
}

// reachesLocked reports whether target is reachable from start through the
// existing inheritance graph. Caller must hold the lock.
func (s *Service) reachesLocked(start, target string) bool {
	visited := make(map[string]bool)
	queue := []string{start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if name == target {
			return true
		}
		if visited[name] {
			continue
		}
		visited[name] = true
		if r, ok := s.roles[name]; ok {
			queue = append(queue, r.InheritsFrom...)
		}
	}
	return false
}

// DeleteRole removes a custom role. System roles cannot be deleted.
func (s *Service) DeleteRole(name string) error {
	s.mu.Lock()
	role, ok := s.roles[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: role %q: %w", name, shared.ErrNotFound)
	}
	if role.System {
		s.mu.Unlock()
		return fmt.Errorf("authz: role %q is a system role", name)
	}
	delete(s.roles, name)
	affected := make([]string, 0)
	for id, u := range s.users {
		for _, r := range u.Roles {
			if r == name {
				affected = append(affected, id)
				break
			}
		}
	}
	s.mu.Unlock()
	for _, id := range affected {
		s.invalidateUser(id)
	}
	return nil
}

// GetRole returns a copy of the named role.
func (s *Service) GetRole(name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return Role{}, fmt.Errorf("authz: role %q: %w", name, shared.ErrNotFound)
	}
	return *role, nil
}

// CreateUser registers a user. Users start active and unlocked unless the
// caller says otherwise.
func (s *Service) CreateUser(user User) error {
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return fmt.Errorf("authz: user id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("authz: user %q already exists", user.ID)
	}
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = &user
	return nil
}

// AssignRole adds a role to a user and invalidates that user's cached
// decisions only.
func (s *Service) AssignRole(userID, roleName string) error {
	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	if _, ok := s.roles[roleName]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: role %q: %w", roleName, shared.ErrNotFound)
	}
	for _, r := range user.Roles {
		if r == roleName {
			s.mu.Unlock()
			return nil
		}
	}
	user.Roles = append(user.Roles, roleName)
	s.mu.Unlock()
	s.invalidateUser(userID)
	return nil
}

// RevokeRole removes a role from a user.
func (s *Service) RevokeRole(userID, roleName string) error {
	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	kept := user.Roles[:0]
	for _, r := range user.Roles {
		if r != roleName {
			kept = append(kept, r)
		}
	}
	user.Roles = kept
	s.mu.Unlock()
	s.invalidateUser(userID)
	return nil
}

// GrantPermission adds a direct override permission to a user.
func (s *Service) GrantPermission(userID, permission string) error {
	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	for _, p := range user.DirectPermissions {
		if p == permission {
			s.mu.Unlock()
			return nil
		}
	}
	user.DirectPermissions = append(user.DirectPermissions, permission)
	s.mu.Unlock()
	s.invalidateUser(userID)
	return nil
}

// RevokePermission removes a direct override permission from a user.
func (s *Service) RevokePermission(userID, permission string) error {
	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	kept := user.DirectPermissions[:0]
	for _, p := range user.DirectPermissions {
		if p != permission {
			kept = append(kept, p)
		}
	}
	user.DirectPermissions = kept
	s.mu.Unlock()
	s.invalidateUser(userID)
	return nil
}

// SetUserStatus flips the active and locked flags.
func (s *Service) SetUserStatus(userID string, active, locked bool) error {
	s.mu.Lock()
	user, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	user.Active = active
	user.Locked = locked
	s.mu.Unlock()
	s.invalidateUser(userID)
	return nil
}

// GetUser returns a copy of the user record.
func (s *Service) GetUser(userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	return *user, nil
}

// EffectivePermissions resolves the deduplicated permission set for a
// user: direct permissions plus a breadth-first traversal of assigned
// roles and their transitive inheritance. Visited roles are skipped, so
// resolution terminates even on redundant or cyclic graphs; unknown roles
// are logged and skipped.
func (s *Service) EffectivePermissions(userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("authz: user %q: %w", userID, shared.ErrNotFound)
	}
	return s.resolveLocked(user), nil
}

func (s *Service) resolveLocked(user *User) []string {
	set := make(map[string]struct{}, len(user.DirectPermissions))
	for _, p := range user.DirectPermissions {
		set[p] = struct{}{}
	}

	visited := make(map[string]bool)
	queue := append([]string(nil), user.Roles...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		role, ok := s.roles[name]
		if !ok {
			s.logger.Warn("user references unknown role", "user_id", user.ID, "role", name)
			continue
		}
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
		queue = append(queue, role.InheritsFrom...)
	}

	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

// Authorize answers one access question. Base decisions are served from
// the per-user cache when fresh; misses are collapsed through
// singleflight so concurrent identical questions resolve once. Context
// policies run on every call, never from the cache, because the cache
// key carries no time component.
func (s *Service) Authorize(ctx context.Context, req Request) Decision {
	start := time.Now()
	if req.At.IsZero() {
		req.At = start.UTC()
	}
	key := req.UserID + "|" + req.Resource + "|" + req.Action

	if v, ok := s.cache.Get(key); ok {
		d := s.applyPolicies(req, v.(Decision))
		d.CacheHit = true
		d.Latency = time.Since(start)
		return d
	}

	v, _, _ := s.sf.Do(key, func() (any, error) {
		d := s.decide(req)
		s.cache.Set(key, d, s.cfg.DecisionTTL)
		return d, nil
	})
	d := s.applyPolicies(req, v.(Decision))
	d.CacheHit = false
	d.Latency = time.Since(start)
	return d
}

// applyPolicies evaluates the context policies against a base decision.
// The cached entry stays policy-free; d is a value copy, so appending
// annotations never mutates the cache.
func (s *Service) applyPolicies(req Request, d Decision) Decision {
	for _, p := range s.policies {
		restrict, annotation := p.Evaluate(req, d.Permissions)
		if annotation != "" {
			d.Policies = append(d.Policies, annotation)
		}
		if restrict && d.Allowed {
			d.Allowed = false
			d.Reason = "restricted by policy " + p.Name()
		}
	}
	return d
}

func (s *Service) decide(req Request) Decision {
	s.mu.RLock()
	user, ok := s.users[req.UserID]
	if !ok {
		s.mu.RUnlock()
		return Decision{Allowed: false, Reason: "unknown user"}
	}
	if !user.Active {
		s.mu.RUnlock()
		return Decision{Allowed: false, Reason: "user inactive"}
	}
	if user.Locked {
		s.mu.RUnlock()
		return Decision{Allowed: false, Reason: "user locked"}
	}
	granted := s.resolveLocked(user)
	s.mu.RUnlock()

	needed := req.Resource + ":" + req.Action
	d := Decision{Permissions: granted}
	if permissionMatches(granted, req.Resource, req.Action) {
		d.Allowed = true
		d.Reason = "permission " + needed + " granted"
	} else {
		d.Allowed = false
		d.Reason = "missing permission " + needed
	}
	return d
}

func permissionMatches(granted []string, resource, action string) bool {
	needed := resource + ":" + action
	for _, p := range granted {
		if p == needed || p == resource+":*" || p == "*:*" {
			return true
		}
	}
	return false
}

func (s *Service) invalidateUser(userID string) {
	removed := s.cache.DeleteByPrefix(userID + "|")
	if removed > 0 {
		s.logger.Debug("authorization cache invalidated", "user_id", userID, "entries", removed)
	}
	for _, fn := range s.onInvalidate {
		fn(userID)
	}
}
