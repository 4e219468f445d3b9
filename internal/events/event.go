// Package events implements the event bus and transactional outbox of
// spec §4.3/§9. The outbox status state machine (PENDING -> PROCESSING ->
// PUBLISHED, with a FAILED retry loop feeding DLQ) is grounded on
// LerianStudio-midaz's transaction component outbox tests
// (internal/adapters/postgres/outbox/state_machine_test.go), the only
// pack repo modeling an outbox as an explicit status state machine — only
// its test files were retrieved, so the production state machine and the
// cenkalti/backoff-driven dispatch loop below are this module's own,
// built to satisfy the same transitions the tests assert.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType is one of the canonical event names of spec §4.3.
type EventType string

const (
	EventUserRegistered       EventType = "UserRegistered"
	EventUserLoggedIn         EventType = "UserLoggedIn"
	EventPasswordChanged      EventType = "PasswordChanged"
	EventMFAEnabled           EventType = "MFAEnabled"
	EventTenantCreated        EventType = "TenantCreated"
	EventTenantSettingsUpdated EventType = "TenantSettingsUpdated"
	EventTaskCreated          EventType = "TaskCreated"
	EventTaskUpdated          EventType = "TaskUpdated"
	EventTaskAssigned         EventType = "TaskAssigned"
	EventTaskStatusChanged    EventType = "TaskStatusChanged"
	EventTaskDeleted          EventType = "TaskDeleted"
	EventTaskCommentAdded     EventType = "TaskCommentAdded"

	// EventSecurityAlert is this module's one addition to the canonical list,
	// emitted by internal/tokens on refresh-token replay (spec §4.5 step 3:
	// "Emit a SecurityAlert event").
	EventSecurityAlert EventType = "SecurityAlert"
)

// Event is the wire shape of spec §4.3: {id, type, aggregate_id,
// tenant_id, payload, version, occurred_at}.
type Event struct {
	ID          uuid.UUID
	Type        EventType
	AggregateID uuid.UUID
	TenantID    uuid.UUID
	Payload     map[string]any
	Version     int
	OccurredAt  time.Time
}

// OutboxStatus is the lifecycle state of one outbox row, per the
// PENDING -> PROCESSING -> {PUBLISHED | FAILED -> DLQ} state machine.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "PENDING"
	StatusProcessing OutboxStatus = "PROCESSING"
	StatusPublished  OutboxStatus = "PUBLISHED"
	StatusFailed     OutboxStatus = "FAILED"
	StatusDLQ        OutboxStatus = "DLQ"
)

// IsTerminal reports whether no further transition is possible.
func (s OutboxStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusDLQ
}

var outboxTransitions = map[OutboxStatus]map[OutboxStatus]bool{
	StatusPending:    {StatusProcessing: true},
	StatusProcessing: {StatusPublished: true, StatusFailed: true},
	StatusFailed:     {StatusProcessing: true, StatusDLQ: true},
	StatusPublished:  {},
	StatusDLQ:        {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	return outboxTransitions[s][next]
}
