package tokens

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/events"
)

// IssuedPair is the result of a login or a successful refresh: a fresh
// access token plus the raw refresh token value (returned to the client
// exactly once — only its hash is ever persisted).
type IssuedPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds, for the HTTP envelope's expires_in
}

// IssueNewFamily mints the first (access, refresh) pair of a login,
// starting a brand new refresh-token family.
func (s *Service) IssueNewFamily(ctx context.Context, in MintAccessInput, deviceFingerprintHash *string) (*IssuedPair, error) {
	access, err := s.MintAccess(in)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	raw, err := newOpaqueToken()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := time.Now()
	row := &RefreshTokenRow{
		ID:        uuid.New(),
		UserID:    in.UserID,
		TenantID:  in.TenantID,
		TokenHash: hashRefreshToken(raw),
		JTI:       uuid.NewString(),
		FamilyID:  uuid.New(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.refreshStore.Insert(ctx, row); err != nil {
		return nil, apperr.Internal(err)
	}

	return &IssuedPair{AccessToken: access, RefreshToken: raw, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

// Refresh implements the rotation algorithm of spec §4.5. The caller
// (internal/authapp) is expected to have begun a transaction whose
// context ctx carries the connection, since LockByJTI/Revoke/RevokeFamily/
// Insert must all observe one SELECT ... FOR UPDATE-protected unit of
// work (spec §9's double-use race mitigation). The returned events must be
// flushed to the outbox by the caller inside that same transaction, before
// commit — Refresh has no outbox handle of its own, only the rotation
// algorithm.
//
// jti is extracted from the presented raw refresh token's accompanying
// metadata by the caller (internal/authapp decodes it from the opaque
// token's own record lookup by hash, since the raw value carries no jti
// itself — see authapp.Refresh).
func (s *Service) Refresh(ctx context.Context, current *RefreshTokenRow, in MintAccessInput) (*IssuedPair, []events.Event, error) {
	if current.Expired(time.Now()) {
		return nil, nil, apperr.InvalidToken("refresh token expired")
	}

	if current.IsRevoked {
		// Replay: this token was already rotated away once. Revoke the
		// entire family — every ancestor and descendant becomes unusable.
		_ = s.refreshStore.RevokeFamily(ctx, current.FamilyID)
		evt := events.Event{
			ID:          uuid.New(),
			Type:        events.EventSecurityAlert,
			AggregateID: current.UserID,
			TenantID:    current.TenantID,
			Payload: map[string]any{
				"actor_user_id": current.UserID.String(),
				"reason":        "refresh_token_replay_detected",
				"family_id":     current.FamilyID.String(),
			},
			Version:    1,
			OccurredAt: time.Now(),
		}
		return nil, []events.Event{evt}, apperr.InvalidToken("refresh token already used (replay detected); session family revoked")
	}

	if err := s.refreshStore.Revoke(ctx, current.ID); err != nil {
		return nil, nil, apperr.Internal(err)
	}

	access, err := s.MintAccess(in)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	raw, err := newOpaqueToken()
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	now := time.Now()
	parent := current.ID
	next := &RefreshTokenRow{
		ID:            uuid.New(),
		UserID:        current.UserID,
		TenantID:      current.TenantID,
		TokenHash:     hashRefreshToken(raw),
		JTI:           uuid.NewString(),
		FamilyID:      current.FamilyID,
		ParentTokenID: &parent,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.refreshTTL),
	}
	if err := s.refreshStore.Insert(ctx, next); err != nil {
		return nil, nil, apperr.Internal(err)
	}

	return &IssuedPair{AccessToken: access, RefreshToken: raw, ExpiresIn: int(s.accessTTL.Seconds())}, nil, nil
}

// Logout revokes only the presented token, not its family (spec §4.5).
func (s *Service) Logout(ctx context.Context, tokenID uuid.UUID) error {
	return s.refreshStore.Revoke(ctx, tokenID)
}

// HashRefreshToken exposes the one-way digest function so callers (e.g.
// internal/authapp, to look a presented raw token up by hash) can compute
// it without reaching into package internals.
func HashRefreshToken(raw string) string {
	return hashRefreshToken(raw)
}

// Expired reports whether the row is past its expiry.
func (r *RefreshTokenRow) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
