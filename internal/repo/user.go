package repo

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/model"
)

// UserRepo is a tenant-scoped repository for Users (spec §3, §4.6).
type UserRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `id, tenant_id, email, username, password_hash, roles, permissions,
	department_id, mfa_enabled, mfa_secret, is_active, email_verified,
	last_login_at, last_password_change_at, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var rolesRaw []string
	var permsRaw []byte
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Username, &u.PasswordHash, &rolesRaw, &permsRaw,
		&u.DepartmentID, &u.MFAEnabled, &u.MFASecret, &u.IsActive, &u.EmailVerified,
		&u.LastLoginAt, &u.LastPasswordChangeAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	for _, r := range rolesRaw {
		u.Roles = append(u.Roles, model.Role(r))
	}
	if len(permsRaw) > 0 {
		if err := json.Unmarshal(permsRaw, &u.Permissions); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

// GetByID loads a user scoped to the caller's bound tenant.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	row := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	u, err := scanUser(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// GetByEmail looks a user up by its case-folded email within the caller's
// bound tenant. The Tenant Resolver runs before Authentication in the
// middleware pipeline (spec §4.8), so the tenant id is already in the
// Request Context by the time Login needs to look a user up by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email = $2`,
		tenantID, strings.ToLower(email))
	u, err := scanUser(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// Create inserts a new user (spec §6's POST /auth/register).
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	perms, err := json.Marshal(u.Permissions)
	if err != nil {
		return apperr.Internal(err)
	}
	roles := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		roles[i] = string(role)
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO users (id, tenant_id, email, username, password_hash, roles, permissions,
			department_id, mfa_enabled, mfa_secret, is_active, email_verified,
			last_login_at, last_password_change_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, u.TenantID, strings.ToLower(u.Email), u.Username, u.PasswordHash, roles, perms,
		u.DepartmentID, u.MFAEnabled, u.MFASecret, u.IsActive, u.EmailVerified,
		u.LastLoginAt, u.LastPasswordChangeAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("email already registered for this tenant")
		}
		return apperr.Internal(err)
	}
	return nil
}

// UpdatePasswordHash persists a rehashed or changed password, bumping
// last_password_change_at (spec §4.3's PasswordChanged event origin).
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE users SET password_hash = $1, last_password_change_at = now(), updated_at = now()
		 WHERE id = $2 AND tenant_id = $3`, hash, id, tenantID)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// UpdateMFA persists the mfa_enabled/mfa_secret pair. Invariant enforced
// by callers in internal/authapp: secret is non-empty iff enabled is true.
func (r *UserRepo) UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, secret string) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE users SET mfa_enabled = $1, mfa_secret = $2, updated_at = now()
		 WHERE id = $3 AND tenant_id = $4`, enabled, secret, id, tenantID)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// TouchLastLogin stamps last_login_at (spec §4.3's UserLoggedIn event
// origin).
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`UPDATE users SET last_login_at = now(), updated_at = now() WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
