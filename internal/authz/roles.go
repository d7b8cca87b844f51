package authz

import "time"

// Built-in role names. They form a strict inheritance chain; each role adds
// permissions on top of the one it inherits from.
const (
	RoleGuest      = "guest"
	RoleUser       = "user"
	RoleOperator   = "operator"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

func builtinRoles(now time.Time) []*Role {
	return []*Role{
		{
			Name:        RoleGuest,
			Description: "Read-only visibility into detections and reports",
			Permissions: []string{"threats:read", "reports:read"},
			System:      true,
			CreatedAt:   now,
		},
		{
			Name:         RoleUser,
			Description:  "Standard desktop user",
			Permissions:  []string{"scans:read", "scans:create", "quarantine:read"},
			InheritsFrom: []string{RoleGuest},
			System:       true,
			CreatedAt:    now,
		},
		{
			Name:         RoleOperator,
			Description:  "Operations staff managing quarantine and updates",
			Permissions:  []string{"quarantine:create", "quarantine:delete", "scans:manage", "updates:apply"},
			InheritsFrom: []string{RoleUser},
			System:       true,
			CreatedAt:    now,
		},
		{
			Name:         RoleAdmin,
			Description:  "Administrator of users, roles and settings",
			Permissions:  []string{"users:manage", "roles:manage", "settings:write", "reports:manage"},
			InheritsFrom: []string{RoleOperator},
			System:       true,
			CreatedAt:    now,
		},
		{
			Name:         RoleSuperAdmin,
			Description:  "Unrestricted system administration",
			Permissions:  []string{"system:admin", "system:configure", "security:manage"},
			InheritsFrom: []string{RoleAdmin},
			System:       true,
			CreatedAt:    now,
		},
	}
}
