package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry records a mutation for later single-tenant audit querying
// (spec §3, and SPEC_FULL's statistics-endpoint supplement). Changes holds
// a before/after diff of the fields the action touched.
type AuditLogEntry struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ActorUserID  uuid.UUID
	Action       string
	TargetType   string
	TargetID     uuid.UUID
	Changes      map[string]any
	CreatedAt    time.Time
}
