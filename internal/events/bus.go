package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Subscriber receives one dispatched event. Returning an error marks the
// dispatch attempt failed; the outbox worker retries per its backoff
// policy and eventually dead-letters (spec §4.3/§9).
type Subscriber func(ctx context.Context, e Event) error

// Bus is a minimal in-process publish/subscribe fan-out. Spec §9 names
// in-process subscribers only (cache invalidation, audit log) — no
// external broker is part of the spec, so there is nothing here for a
// message-broker client library to do; see DESIGN.md.
type Bus struct {
	subscribers map[EventType][]Subscriber
	all         []Subscriber
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: map[EventType][]Subscriber{}}
}

// Subscribe registers fn to receive every event of the given type. An
// empty types list subscribes fn to all event types.
func (b *Bus) Subscribe(fn Subscriber, types ...EventType) {
	if len(types) == 0 {
		b.all = append(b.all, fn)
		return
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], fn)
	}
}

// Dispatch invokes every subscriber registered for e.Type plus every
// wildcard subscriber. The first subscriber error aborts dispatch and is
// returned to the caller (the outbox worker), which decides whether to
// retry or dead-letter the row.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	for _, fn := range append(append([]Subscriber{}, b.subscribers[e.Type]...), b.all...) {
		if err := fn(ctx, e); err != nil {
			log.Ctx(ctx).Warn().Err(err).
				Str("event_type", string(e.Type)).
				Str("event_id", e.ID.String()).
				Msg("event subscriber returned an error")
			return err
		}
	}
	return nil
}
