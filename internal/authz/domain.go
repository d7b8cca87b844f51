package authz

import "time"

// Role groups permissions and may inherit from other roles. Permission
// strings have the form "resource:action"; "resource:*" and "*:*" act as
// wildcards during matching.
type Role struct {
	Name         string
	Description  string
	Permissions  []string
	InheritsFrom []string
	System       bool
	CreatedAt    time.Time
}

// User holds the engine's view of an account: assigned roles plus direct
// override permissions. Users are created explicitly and never deleted
// automatically.
type User struct {
	ID                string
	Username          string
	Roles             []string
	DirectPermissions []string
	Active            bool
	Locked            bool
	CreatedAt         time.Time
}

// Request is one authorization question, ephemeral per decision.
type Request struct {
	UserID    string
	Resource  string
	Action    string
	At        time.Time
	ClientIP  string
	UserAgent string
	Extra     map[string]any
}

// Decision is the outcome of a Request. Permissions lists the accumulated
// set used for the decision; Policies lists annotations from context
// policies that ran after the base decision.
type Decision struct {
	Allowed     bool
	Reason      string
	Permissions []string
	Policies    []string
	CacheHit    bool
	Latency     time.Duration
}
