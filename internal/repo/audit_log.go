package repo

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/events"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/reqctx"
)

// AuditLogRepo is a tenant-scoped, append-only repository for
// AuditLogEntry (spec §3: "Append-only; never served cross-tenant").
type AuditLogRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new audit entry, typically from an outbox subscriber
// reacting to a domain event (spec §9: "in-process subscribers for cache
// invalidation and audit").
func (r *AuditLogRepo) Create(ctx context.Context, e *model.AuditLogEntry) error {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return err
	}
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return apperr.Internal(err)
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO audit_log_entries (id, tenant_id, actor_user_id, action, target_type, target_id, changes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, tenantID, e.ActorUserID, e.Action, e.TargetType, e.TargetID, changes, e.CreatedAt)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ListRecent returns the most recent audit entries for the caller's
// tenant, newest first, for the statistics/audit read supplement.
func (r *AuditLogRepo) ListRecent(ctx context.Context, limit int) ([]*model.AuditLogEntry, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := connFor(ctx, r.pool).Query(ctx,
		`SELECT id, tenant_id, actor_user_id, action, target_type, target_id, changes, created_at
		 FROM audit_log_entries WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []*model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.Action, &e.TargetType, &e.TargetID, &changes, &e.CreatedAt); err != nil {
			return nil, apperr.Internal(err)
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, apperr.Internal(err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Subscriber returns an events.Subscriber that appends one AuditLogEntry
// per dispatched event (spec §9: "in-process subscribers for cache
// invalidation and audit"). It is registered against every event type —
// Bus.Subscribe with no types argument — so the outbox worker's dispatch
// loop drives it for every event; no cache-invalidation subscriber is
// registered on the Bus.
//
// The dispatch-time context carries no reqctx.RequestContext (the worker
// runs outside any HTTP request), so the subscriber binds one itself from
// the event's own tenant id before calling Create, which requires it.
func (r *AuditLogRepo) Subscriber() events.Subscriber {
	return func(ctx context.Context, e events.Event) error {
		ctx = reqctx.WithRequestContext(ctx, &reqctx.RequestContext{TenantID: e.TenantID})

		actor := e.AggregateID
		if raw, ok := e.Payload["actor_user_id"].(string); ok && raw != "" {
			if parsed, err := uuid.Parse(raw); err == nil {
				actor = parsed
			}
		}

		entry := &model.AuditLogEntry{
			ID:          uuid.New(),
			TenantID:    e.TenantID,
			ActorUserID: actor,
			Action:      string(e.Type),
			TargetType:  auditTargetType(e.Type),
			TargetID:    e.AggregateID,
			Changes:     e.Payload,
			CreatedAt:   e.OccurredAt,
		}
		return r.Create(ctx, entry)
	}
}

// auditTargetType classifies an event's aggregate kind for audit display,
// since events.Event itself carries no aggregate-type field (spec §4.3's
// wire shape is exactly {id, type, aggregate_id, tenant_id, payload,
// version, occurred_at}).
func auditTargetType(t events.EventType) string {
	switch {
	case strings.HasPrefix(string(t), "Task"):
		return "Task"
	case strings.HasPrefix(string(t), "Tenant"):
		return "Tenant"
	case strings.HasPrefix(string(t), "User"), strings.HasPrefix(string(t), "Password"), strings.HasPrefix(string(t), "MFA"):
		return "User"
	default:
		return "Security"
	}
}
