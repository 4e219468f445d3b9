package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/events"
	"github.com/oranofz/taskmanagement/internal/mediator"
)

// BeginTx satisfies mediator.TxBeginner: it opens a Postgres transaction
// and returns a context bound to it, so every repository call made with
// the returned context runs inside that same transaction (spec §4.9:
// "begin transaction -> execute handler -> flush outbox -> commit").
// pgx.Tx already exposes Commit(ctx) error / Rollback(ctx) error, so it
// satisfies mediator.Tx with no adapter type needed.
func (rs *Repos) BeginTx(ctx context.Context) (context.Context, mediator.Tx, error) {
	tx, err := rs.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ctx, nil, apperr.Internal(err)
	}
	return WithTx(ctx, tx), tx, nil
}

// FlushOutbox satisfies mediator.OutboxFlusher: it writes every event a
// command handler produced as a PENDING outbox row in the same
// transaction the handler just ran in (spec §4.3's same-transaction
// guarantee).
func (rs *Repos) FlushOutbox(ctx context.Context, _ mediator.Tx, produced []events.Event) error {
	for _, e := range produced {
		if err := rs.Outbox.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
