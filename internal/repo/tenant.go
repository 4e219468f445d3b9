package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/model"
)

// TenantRepo is the one repository not scoped by an existing tenant id —
// its whole job is resolving or creating that id (spec §4.6).
type TenantRepo struct {
	pool *pgxpool.Pool
}

func scanTenant(row rowScanner) (*model.Tenant, error) {
	var t model.Tenant
	var settings []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.SubscriptionPlan, &t.MaxUsers,
		&t.IsActive, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// rowScanner is the minimal surface of pgx.Row used by scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

const tenantColumns = `id, name, subdomain, subscription_plan, max_users, is_active, settings, created_at, updated_at`

// GetTenantByID is the Tenant Resolver's lookup-by-id path (spec §4.6).
func (r *TenantRepo) GetTenantByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	row := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.NotFound("tenant not found")
		}
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// GetTenantBySubdomain resolves a subdomain to its tenant (spec §4.6).
func (r *TenantRepo) GetTenantBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error) {
	row := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain)
	t, err := scanTenant(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.NotFound("tenant not found")
		}
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// Create inserts a new tenant, rejecting subdomains already in use or in
// the reserved set (spec §3's subdomain-collision invariant).
func (r *TenantRepo) Create(ctx context.Context, t *model.Tenant) error {
	if model.ReservedSubdomains[t.Subdomain] {
		return apperr.Validation("subdomain is reserved")
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return apperr.Internal(err)
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO tenants (id, name, subdomain, subscription_plan, max_users, is_active, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, t.Subdomain, t.SubscriptionPlan, t.MaxUsers, t.IsActive, settings, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("subdomain already in use")
		}
		return apperr.Internal(err)
	}
	return nil
}

// UpdateSettings persists a tenant's settings blob (spec §4.3's
// TenantSettingsUpdated event origin).
func (r *TenantRepo) UpdateSettings(ctx context.Context, id uuid.UUID, settings map[string]any) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return apperr.Internal(err)
	}
	tag, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE tenants SET settings = $1, updated_at = now() WHERE id = $2`, raw, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("tenant not found")
	}
	return nil
}
