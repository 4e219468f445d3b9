package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one rotation step in a login's token family (spec §3,
// §4.5). The raw token value is returned to the client exactly once and
// never persisted — only TokenHash, an unsalted SHA-256 hex digest, is
// stored.
type RefreshToken struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	TenantID             uuid.UUID
	TokenHash            string
	JTI                  string
	FamilyID             uuid.UUID
	ParentTokenID        *uuid.UUID
	IsRevoked            bool
	ExpiresAt            time.Time
	CreatedAt            time.Time
	DeviceFingerprintHash *string
}

// Expired reports whether the token is past its expiry at time now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
