// Package authz implements the three independent, AND-composed gates of
// spec §4.7: role, permission, and per-resource predicate. There is no
// pack dependency that expresses a five-row static role table as a
// library (jordigilh-kubernaut's open-policy-agent/opa is built for
// dynamic policy documents, not a handful of fixed rows) — see DESIGN.md
// for why this package is stdlib-only by choice, not by omission.
package authz

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/reqctx"
)

// HasPermission reports whether perms grants perm, honoring the "*"
// global wildcard and "{prefix}.*" namespace wildcards (e.g. "tasks.*"
// grants "tasks.update").
func HasPermission(perms map[string]bool, perm string) bool {
	if perms["*"] {
		return true
	}
	if perms[perm] {
		return true
	}
	if i := strings.IndexByte(perm, '.'); i >= 0 {
		if perms[perm[:i]+".*"] {
			return true
		}
	}
	return false
}

// RequireRole is the role gate: the caller must hold at least one of the
// allowed roles.
func RequireRole(rc *reqctx.RequestContext, allowed ...string) error {
	for _, role := range allowed {
		if rc.HasRole(role) {
			return nil
		}
	}
	return apperr.Forbidden("caller does not hold a required role")
}

// RequirePermission is the permission gate.
func RequirePermission(rc *reqctx.RequestContext, perm string) error {
	if rc == nil || !HasPermission(rc.Permissions, perm) {
		return apperr.Forbidden("caller lacks required permission")
	}
	return nil
}

// TaskResource is the subset of a Task's fields the resource gate needs.
// Kept independent of internal/model to avoid import cycles with
// internal/taskapp, which both depends on authz and owns the Task type.
type TaskResource struct {
	AssignedToUserID    *uuid.UUID
	CreatedByUserID     uuid.UUID
	ProjectDepartmentID *uuid.UUID
}

// RequireTaskAccess is the Task resource gate of spec §4.7:
// assigned_to == user OR created_by == user OR role ∈ {TENANT_ADMIN,
// SYSTEM_ADMIN} OR (user.department_id == task.project.department_id AND
// tasks.read ∈ permissions).
func RequireTaskAccess(rc *reqctx.RequestContext, userID uuid.UUID, userDepartmentID *uuid.UUID, res TaskResource) error {
	if res.AssignedToUserID != nil && *res.AssignedToUserID == userID {
		return nil
	}
	if res.CreatedByUserID == userID {
		return nil
	}
	if rc.HasRole("TENANT_ADMIN") || rc.HasRole("SYSTEM_ADMIN") {
		return nil
	}
	if userDepartmentID != nil && res.ProjectDepartmentID != nil &&
		*userDepartmentID == *res.ProjectDepartmentID && HasPermission(rc.Permissions, "tasks.read") {
		return nil
	}
	// Failures never distinguish "forbidden" from "not found" at this
	// layer; the caller maps both to NOT_FOUND to avoid an existence oracle.
	return apperr.Forbidden("caller is not authorized for this task")
}

// RequireAll composes the role and permission gates; callers invoke
// RequireTaskAccess separately since it needs resource data not available
// until after the aggregate is loaded.
func RequireAll(ctx context.Context, allowedRoles []string, perm string) error {
	rc := reqctx.FromContext(ctx)
	if rc == nil {
		return apperr.Unauthenticated("no authenticated request context")
	}
	if len(allowedRoles) > 0 {
		if err := RequireRole(rc, allowedRoles...); err != nil {
			return err
		}
	}
	if perm != "" {
		if err := RequirePermission(rc, perm); err != nil {
			return err
		}
	}
	return nil
}
