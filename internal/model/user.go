package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is one of the five roles in spec §4.7's default-permission table.
type Role string

const (
	RoleSystemAdmin    Role = "SYSTEM_ADMIN"
	RoleTenantAdmin    Role = "TENANT_ADMIN"
	RoleProjectManager Role = "PROJECT_MANAGER"
	RoleMember         Role = "MEMBER"
	RoleGuest          Role = "GUEST"
)

// DefaultPermissions is the Role -> default permission set table of spec
// §4.7. "*" means every permission.
var DefaultPermissions = map[Role][]string{
	RoleSystemAdmin:    {"*"},
	RoleTenantAdmin:    {"tasks.*", "users.manage", "reports.view", "tenant.configure"},
	RoleProjectManager: {"tasks.read", "tasks.create", "tasks.update", "tasks.assign", "reports.view"},
	RoleMember:         {"tasks.read", "tasks.create", "tasks.update"},
	RoleGuest:          {"tasks.read"},
}

// User is a tenant member (spec §3). Invariant: MFASecret is non-empty iff
// MFAEnabled — enforced by internal/authapp's EnableMFA/DisableMFA/VerifyMFA
// handlers, never mutated directly elsewhere.
type User struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	Email                string // case-folded, unique per tenant
	Username             string
	PasswordHash         string
	Roles                []Role
	Permissions          map[string]bool // derived cache of roles; may be overridden
	DepartmentID         *uuid.UUID
	MFAEnabled           bool
	MFASecret            string
	IsActive             bool
	EmailVerified        bool
	LastLoginAt          *time.Time
	LastPasswordChangeAt time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EffectivePermissions returns the user's permission set, folding role
// defaults together with any per-user overrides already stored on the
// record (spec §9: "per-user overrides are allowed").
func (u *User) EffectivePermissions() map[string]bool {
	perms := map[string]bool{}
	for _, role := range u.Roles {
		for _, p := range DefaultPermissions[role] {
			perms[p] = true
		}
	}
	for p, granted := range u.Permissions {
		perms[p] = granted
	}
	return perms
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
