package authz

import "strings"

// Policy is a context policy evaluated after the base RBAC decision. A
// policy can annotate the decision and can restrict an allowed one; it can
// never independently grant access.
type Policy interface {
	Name() string
	// Evaluate returns whether the decision must be restricted and an
	// optional annotation tag.
	Evaluate(req Request, granted []string) (restrict bool, annotation string)
}

// AfterHoursPolicy tags requests outside the configured local-time window
// and restricts the listed actions during that period.
type AfterHoursPolicy struct {
	StartHour       int
	EndHour         int
	RestrictActions []string
}

// Name implements Policy.
func (p AfterHoursPolicy) Name() string { return "after_hours" }

// Evaluate implements Policy.
func (p AfterHoursPolicy) Evaluate(req Request, _ []string) (bool, string) {
	hour := req.At.Hour()
	inside := hour >= p.StartHour && hour < p.EndHour
	if inside {
		return false, ""
	}
	for _, action := range p.RestrictActions {
		if req.Action == action {
			return true, "after_hours"
		}
	}
	return false, "after_hours"
}

// HighPrivilegePolicy annotates decisions on sensitive actions so the
// audit trail can single them out. It never restricts.
type HighPrivilegePolicy struct{}

// Name implements Policy.
func (HighPrivilegePolicy) Name() string { return "high_privilege" }

var highPrivilegeActions = map[string]bool{
	"admin":     true,
	"manage":    true,
	"delete":    true,
	"configure": true,
}

// Evaluate implements Policy.
func (HighPrivilegePolicy) Evaluate(req Request, _ []string) (bool, string) {
	if highPrivilegeActions[strings.ToLower(req.Action)] {
		return false, "high_privilege_action"
	}
	return false, ""
}
