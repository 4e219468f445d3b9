package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/events"
)

// OutboxRepo implements the transactional outbox of spec §4.3: Insert
// runs inside the mediator's open transaction (the same one that mutated
// the aggregate); ClaimBatch/MarkPublished/MarkFailed/MarkDeadLettered
// back the asynchronous poller in internal/events.Worker.
type OutboxRepo struct {
	pool *pgxpool.Pool
}

// Insert writes one event as a PENDING outbox row, within whatever
// transaction ctx carries — the mediator calls this as its OutboxFlusher
// before commit, satisfying spec §4.3's same-transaction guarantee.
func (r *OutboxRepo) Insert(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return apperr.Internal(err)
	}
	_, err = connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO outbox_rows (id, tenant_id, event_type, aggregate_id, payload, version, status, attempts, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`,
		e.ID, e.TenantID, e.Type, e.AggregateID, payload, e.Version, events.StatusPending, e.OccurredAt)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ClaimBatch atomically moves up to limit PENDING rows to PROCESSING and
// returns them, so concurrent poller instances never double-dispatch one
// row (spec §9's outbox worker concurrency note).
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int) ([]*events.ClaimedRow, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE outbox_rows SET status = $1
		 WHERE id IN (
			SELECT id FROM outbox_rows WHERE status = $2 ORDER BY occurred_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, tenant_id, event_type, aggregate_id, payload, version, attempts, occurred_at`,
		events.StatusProcessing, events.StatusPending, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer rows.Close()

	var out []*events.ClaimedRow
	for rows.Next() {
		var e events.Event
		var payload []byte
		var attempts int
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Type, &e.AggregateID, &payload, &e.Version, &attempts, &e.OccurredAt); err != nil {
			return nil, apperr.Internal(err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, apperr.Internal(err)
			}
		}
		out = append(out, &events.ClaimedRow{Event: e, Attempts: attempts})
	}
	return out, rows.Err()
}

// MarkPublished transitions a row PROCESSING -> PUBLISHED.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_rows SET status = $1, published_at = now() WHERE id = $2`, events.StatusPublished, id)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// MarkFailed transitions a row PROCESSING -> FAILED, recording the
// attempt count and last error for observability.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_rows SET status = $1, attempts = $2, last_error = $3 WHERE id = $4`,
		events.StatusFailed, attempts, lastErr, id)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// MarkDeadLettered transitions a row PROCESSING -> DLQ after exhausting
// retries (spec §9's outbox retry/dead-letter policy).
func (r *OutboxRepo) MarkDeadLettered(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_rows SET status = $1, last_error = $2, dead_lettered_at = now() WHERE id = $3`,
		events.StatusDLQ, lastErr, id)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
