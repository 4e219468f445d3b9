// Package repo implements tenant-scoped Postgres repositories (spec §4.6's
// isolation guarantee, §9's "sole write path" note). Every TaskRepo,
// CommentRepo and AuditLogRepo method, and every UserRepo method except
// Create, takes its tenant id from reqctx.RequireTenantID rather than a
// caller-supplied argument, so a crafted payload can never smuggle in a
// different tenant's id — the mechanical enforcement point named in spec
// §4.6. UserRepo.Create uses the user's own TenantID field; TenantRepo,
// RefreshTokenRepo and OutboxRepo do not read a bound tenant id. Query style
// (raw SQL, $N placeholders, pgx QueryRow/Scan/Exec) follows
// erauner12-toolbridge-api/internal/httpapi/epoch.go and
// internal/db/pg.go, the only SQL-issuing code the teacher carries.
package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/reqctx"
)

// conn is satisfied by both *pgxpool.Pool and pgx.Tx so every repository
// method runs identically whether or not the mediator has opened a
// transaction for the current command.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txCtxKey struct{}

// WithTx returns a context carrying tx; repositories invoked with it run
// inside that transaction instead of against the bare pool. The mediator's
// TxBeginner uses this to scope a command's repository calls.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// connFor returns the active transaction bound to ctx, or pool if none.
func connFor(ctx context.Context, pool *pgxpool.Pool) conn {
	if tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Repos bundles every tenant-scoped repository, constructed once at
// startup and shared across requests (the pool itself is the shared
// mutable resource named in spec §9; each method reads whichever
// connection — pool or an open mediator transaction — ctx is bound to).
type Repos struct {
	Pool *pgxpool.Pool

	Tenant       *TenantRepo
	User         *UserRepo
	RefreshToken *RefreshTokenRepo
	Task         *TaskRepo
	Comment      *CommentRepo
	AuditLog     *AuditLogRepo
	Outbox       *OutboxRepo
}

// New builds a Repos bundle backed by pool.
func New(pool *pgxpool.Pool) *Repos {
	return &Repos{
		Pool:         pool,
		Tenant:       &TenantRepo{pool: pool},
		User:         &UserRepo{pool: pool},
		RefreshToken: &RefreshTokenRepo{pool: pool},
		Task:         &TaskRepo{pool: pool},
		Comment:      &CommentRepo{pool: pool},
		AuditLog:     &AuditLogRepo{pool: pool},
		Outbox:       &OutboxRepo{pool: pool},
	}
}

// requireTenant is the mechanical isolation checkpoint of spec §4.6 every
// tenant-scoped repository method calls before touching the database.
func requireTenant(ctx context.Context) (string, error) {
	id, err := reqctx.RequireTenantID(ctx)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return id.String(), nil
}

// ErrNotFound is returned when a tenant-scoped lookup finds no row —
// including rows that exist but belong to a different tenant, which must
// be indistinguishable from "does not exist" per spec §7's
// existence-oracle guard. Callers wrap it as apperr.NotFound.
var ErrNotFound = errors.New("repo: not found")

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
