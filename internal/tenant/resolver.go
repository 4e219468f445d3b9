// Package tenant implements the Tenant Resolver of spec §4.6: it binds
// every inbound request to exactly one tenant by combining the
// X-Tenant-ID header, the request's subdomain, and the tenant_id claim of
// an already-validated access token, rejecting any disagreement between
// signals. The resolution-order and reserved-subdomain logic is adapted
// from erauner12-toolbridge-api/internal/auth/tenant_headers.go's header
// validation and TTL-cached-authorization shape; the persistence lookup
// and caching go through internal/cache instead of an in-process map so it
// survives process restarts and works across replicas.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/cache"
	"github.com/oranofz/taskmanagement/internal/model"
)

const resolveCacheTTL = 5 * time.Minute

// Store is the persistence lookup the resolver needs. internal/repo
// implements it; kept minimal and interface-typed here so the resolver
// has no direct database dependency.
type Store interface {
	GetTenantByID(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*model.Tenant, error)
}

// Resolver implements the resolution order of spec §4.6: header,
// subdomain, then the tenant_id claim of an already-validated token.
type Resolver struct {
	store    Store
	cache    *cache.Cache
	apexHost string
}

// New builds a Resolver. apexHost is the configured apex domain
// (TENANT_APEX_HOST) against which "{sub}.{apex}" subdomains are matched —
// spec.md leaves the apex host undefined (Open Question), so DESIGN.md
// resolves it as a required configuration value.
func New(store Store, c *cache.Cache, apexHost string) *Resolver {
	return &Resolver{store: store, cache: c, apexHost: strings.ToLower(apexHost)}
}

// Signals are the tenant-identifying values a request may present. Any
// subset may be empty; JWTTenantID is populated only after the access
// token itself has already been cryptographically verified.
type Signals struct {
	HeaderTenantID string // X-Tenant-ID value, if present
	Host           string // request Host header, for subdomain matching
	JWTTenantID    string // tenant_id claim of a verified access token, if present
}

// subdomainOf extracts "{sub}" from "{sub}.{apex}", or "" if host does not
// match that shape or sub is a reserved name.
func (r *Resolver) subdomainOf(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	suffix := "." + r.apexHost
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(host, suffix)
	if sub == "" || strings.Contains(sub, ".") || model.ReservedSubdomains[sub] {
		return ""
	}
	return sub
}

// lookupBySubdomain resolves a subdomain to a tenant id, consulting the
// cache namespace "tenant:subdomain:{sub}" before hitting the store.
func (r *Resolver) lookupBySubdomain(ctx context.Context, sub string) (uuid.UUID, error) {
	key := fmt.Sprintf("tenant:subdomain:%s", sub)
	var cached string
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		if id, err := uuid.Parse(cached); err == nil {
			return id, nil
		}
	}

	t, err := r.store.GetTenantBySubdomain(ctx, sub)
	if err != nil {
		return uuid.Nil, err
	}
	r.cache.Set(ctx, key, t.ID.String(), resolveCacheTTL)
	return t.ID, nil
}

// Resolve applies spec §4.6's resolution order and agreement check, then
// loads and validates the tenant. On success it returns the tenant;
// callers write its id into the Request Context.
func (r *Resolver) Resolve(ctx context.Context, sig Signals) (*model.Tenant, error) {
	var candidates []uuid.UUID

	if sig.HeaderTenantID != "" {
		id, err := uuid.Parse(sig.HeaderTenantID)
		if err != nil {
			return nil, apperr.Validation("X-Tenant-ID header is not a valid UUID")
		}
		candidates = append(candidates, id)
	}

	if sub := r.subdomainOf(sig.Host); sub != "" {
		id, err := r.lookupBySubdomain(ctx, sub)
		if err != nil {
			if !errors.As(err, new(*apperr.Error)) {
				return nil, apperr.Wrap(apperr.CodeNotFound, "tenant subdomain not found", err)
			}
			return nil, err
		}
		candidates = append(candidates, id)
	}

	if sig.JWTTenantID != "" {
		id, err := uuid.Parse(sig.JWTTenantID)
		if err != nil {
			return nil, apperr.InvalidToken("token tenant_id claim is not a valid UUID")
		}
		candidates = append(candidates, id)
	}

	if len(candidates) == 0 {
		return nil, apperr.Validation("no tenant signal present on request")
	}

	first := candidates[0]
	for _, c := range candidates[1:] {
		if c != first {
			return nil, apperr.TenantMismatch("tenant signals disagree")
		}
	}

	t, err := r.store.GetTenantByID(ctx, first)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNotFound, "tenant not found", err)
	}
	if !t.IsActive {
		return nil, apperr.Forbidden("tenant is deactivated")
	}
	return t, nil
}
