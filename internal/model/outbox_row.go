package model

import (
	"time"

	"github.com/google/uuid"
)

// OutboxRow is one row of the transactional outbox (spec §4.3, §9): it is
// written in the same database transaction as the aggregate mutation that
// produced it, then picked up by the poller and handed to the event bus.
// PublishedAt is nil until a dispatch attempt succeeds.
type OutboxRow struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	Payload       map[string]any
	Version       int
	Attempts      int
	LastError     string
	OccurredAt    time.Time
	PublishedAt   *time.Time
	DeadLetteredAt *time.Time
}

// IsDeadLettered reports whether dispatch has been permanently abandoned.
func (o *OutboxRow) IsDeadLettered() bool {
	return o.DeadLetteredAt != nil
}

// IsPublished reports whether dispatch already succeeded.
func (o *OutboxRow) IsPublished() bool {
	return o.PublishedAt != nil
}
