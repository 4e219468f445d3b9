package events

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxAttempts is the number of failed dispatch attempts a row tolerates
// before it is moved to DLQ (spec §9's outbox retry policy).
const maxAttempts = 10

// OutboxStore is the persistence surface the poller needs (implemented by
// internal/repo). ClaimBatch must atomically move rows PENDING ->
// PROCESSING so two poller instances never double-dispatch the same row.
type OutboxStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]*ClaimedRow, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error
	MarkDeadLettered(ctx context.Context, id uuid.UUID, lastErr string) error
}

// ClaimedRow is one outbox row handed to the dispatcher.
type ClaimedRow struct {
	Event    Event
	Attempts int
}

// Worker polls the outbox and fans claimed rows out through a Bus,
// retrying failed dispatches with exponential backoff
// (cenkalti/backoff/v4, already an indirect teacher dependency promoted
// to direct use here) before dead-lettering.
type Worker struct {
	store        OutboxStore
	bus          *Bus
	pollInterval time.Duration
	batchSize    int

	deadLetterCount int64
}

// NewWorker builds an outbox Worker.
func NewWorker(store OutboxStore, bus *Bus, pollInterval time.Duration) *Worker {
	return &Worker{store: store, bus: bus, pollInterval: pollInterval, batchSize: 50}
}

// DeadLetterCount returns the number of rows dead-lettered since startup,
// surfaced on /health per SPEC_FULL.md's supplement (no Prometheus wiring
// is named in spec.md's External Interfaces, so this is the simplest
// faithful signal available).
func (w *Worker) DeadLetterCount() int64 {
	return w.deadLetterCount
}

// Run polls until ctx is cancelled, then drains one final batch before
// returning (spec §9's shutdown-drain requirement for outbox workers).
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	w.pollOnce(drainCtx)
}

func (w *Worker) pollOnce(ctx context.Context) {
	rows, err := w.store.ClaimBatch(ctx, w.batchSize)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("outbox claim batch failed")
		return
	}
	for _, row := range rows {
		w.dispatchOne(ctx, row)
	}
}

// backoffFor returns the per-attempt retry delay policy: base 1s, factor
// 2, cap 60s — the same shape as spec §9's outbox retry description.
func backoffFor() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // bounded by maxAttempts, not wall-clock, in this path
	return b
}

func (w *Worker) dispatchOne(ctx context.Context, row *ClaimedRow) {
	attempts := row.Attempts
	var lastErr error

	op := func() error {
		attempts++
		err := w.bus.Dispatch(ctx, row.Event)
		lastErr = err
		return err
	}

	// WithMaxRetries(n) runs op up to n+1 times; cap the total at maxAttempts.
	retries := maxAttempts - row.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithMaxRetries(backoffFor(), uint64(retries))
	if err := backoff.Retry(op, bo); err != nil {
		if attempts >= maxAttempts {
			w.deadLetterCount++
			if dlErr := w.store.MarkDeadLettered(ctx, row.Event.ID, lastErr.Error()); dlErr != nil {
				log.Ctx(ctx).Error().Err(dlErr).Str("event_id", row.Event.ID.String()).Msg("failed to mark outbox row dead-lettered")
			}
			log.Ctx(ctx).Error().Err(lastErr).Str("event_id", row.Event.ID.String()).Msg("outbox row dead-lettered after max attempts")
			return
		}
		if mfErr := w.store.MarkFailed(ctx, row.Event.ID, attempts, lastErr.Error()); mfErr != nil {
			log.Ctx(ctx).Error().Err(mfErr).Str("event_id", row.Event.ID.String()).Msg("failed to mark outbox row failed")
		}
		return
	}

	if err := w.store.MarkPublished(ctx, row.Event.ID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("event_id", row.Event.ID.String()).Msg("failed to mark outbox row published")
	}
}
