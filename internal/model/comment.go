package model

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a note attached to a Task (spec §3).
type Comment struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	TaskID    uuid.UUID
	UserID    uuid.UUID
	Content   string
	CreatedAt time.Time
}
