// Package mediator implements the CQRS dispatcher of spec §4.9: a single
// dispatch(msg) entry point that routes by message type to exactly one
// handler, wrapping commands in the fixed pipeline schema-validate ->
// authorize -> begin transaction -> execute -> flush outbox -> commit.
// Queries skip the transaction and outbox stages. No pack repo implements
// a generic mediator (LerianStudio-midaz splits command/query into
// separate packages per bounded context instead of a single dispatcher),
// so the dispatch loop itself is built directly from spec §4.9/§9; its
// logging and error-wrapping idiom follows the teacher's zerolog usage.
package mediator

import (
	"context"
	"fmt"
	"reflect"

	"github.com/rs/zerolog/log"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/events"
)

// Message is a Command or Query value dispatched through the mediator.
// Handlers are registered per concrete message type via reflection on the
// message's Go type, matching the "routes by message type" language of
// spec §4.9.
type Message any

// Validator is implemented by commands/queries that carry their own
// schema-validation step (the "schema-validate" pipeline stage).
type Validator interface {
	Validate() error
}

// Tx is the minimal transaction boundary a command handler runs inside.
// internal/repo's postgres transaction wrapper satisfies this.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// CommandHandler executes one command inside an open transaction, and
// returns both the result DTO and the events it produced (to be flushed
// to the outbox in the same transaction before commit).
type CommandHandler func(ctx context.Context, tx Tx, msg Message) (result any, produced []events.Event, err error)

// QueryHandler executes one query with no transaction or outbox.
type QueryHandler func(ctx context.Context, msg Message) (result any, err error)

// Authorizer checks role/permission/resource gates for msg before
// execution. Returning a non-nil error aborts the pipeline before any
// transaction is opened.
type Authorizer func(ctx context.Context, msg Message) error

// TxBeginner opens a new transaction-scoped Tx.
type TxBeginner func(ctx context.Context) (context.Context, Tx, error)

// OutboxFlusher persists the events produced by a command handler as
// outbox rows within the same transaction (spec §4.3: "inserted in the
// same transaction as the aggregate mutation").
type OutboxFlusher func(ctx context.Context, tx Tx, produced []events.Event) error

type registration struct {
	authorize Authorizer
	command   CommandHandler
	query     QueryHandler
}

// Mediator is the single dispatch(msg) entry point of spec §4.9.
type Mediator struct {
	handlers map[reflect.Type]registration
	begin    TxBeginner
	flush    OutboxFlusher
}

// New builds a Mediator. begin opens a new per-command transaction; flush
// writes a command's produced events as outbox rows inside that
// transaction, before commit.
func New(begin TxBeginner, flush OutboxFlusher) *Mediator {
	return &Mediator{handlers: map[reflect.Type]registration{}, begin: begin, flush: flush}
}

// RegisterCommand binds a command message type to its handler and
// authorizer. authorize may be nil if the command requires no additional
// gate beyond whatever the HTTP layer already enforced.
func (m *Mediator) RegisterCommand(msg Message, authorize Authorizer, handler CommandHandler) {
	m.handlers[reflect.TypeOf(msg)] = registration{authorize: authorize, command: handler}
}

// RegisterQuery binds a query message type to its handler and authorizer.
func (m *Mediator) RegisterQuery(msg Message, authorize Authorizer, handler QueryHandler) {
	m.handlers[reflect.TypeOf(msg)] = registration{authorize: authorize, query: handler}
}

// Dispatch routes msg through the fixed pipeline of spec §4.9.
func (m *Mediator) Dispatch(ctx context.Context, msg Message) (any, error) {
	reg, ok := m.handlers[reflect.TypeOf(msg)]
	if !ok {
		return nil, apperr.Internal(fmt.Errorf("mediator: no handler registered for %T", msg))
	}

	if v, ok := msg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if ae, ok := apperr.As(err); ok {
				return nil, ae
			}
			return nil, apperr.WithDetails(apperr.CodeValidation, "validation failed", err.Error())
		}
	}

	if reg.authorize != nil {
		if err := reg.authorize(ctx, msg); err != nil {
			return nil, err
		}
	}

	if reg.query != nil {
		return reg.query(ctx, msg)
	}

	return m.dispatchCommand(ctx, msg, reg.command)
}

func (m *Mediator) dispatchCommand(ctx context.Context, msg Message, handler CommandHandler) (any, error) {
	txCtx, tx, err := m.begin(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("beginning transaction: %w", err))
	}

	result, produced, err := handler(txCtx, tx, msg)
	if err != nil {
		if rbErr := tx.Rollback(txCtx); rbErr != nil {
			log.Ctx(ctx).Error().Err(rbErr).Msg("rollback after handler error also failed")
		}
		return nil, err
	}

	if len(produced) > 0 {
		if err := m.flush(txCtx, tx, produced); err != nil {
			if rbErr := tx.Rollback(txCtx); rbErr != nil {
				log.Ctx(ctx).Error().Err(rbErr).Msg("rollback after outbox flush error also failed")
			}
			return nil, apperr.Internal(fmt.Errorf("flushing outbox: %w", err))
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, apperr.Internal(fmt.Errorf("committing transaction: %w", err))
	}

	return result, nil
}
