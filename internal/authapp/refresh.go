package authapp

import (
	"context"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/tokens"
)

// RefreshCommand is POST /auth/refresh's payload. It is modeled as its own
// pipeline (not routed through the generic mediator.Dispatch) because its
// transaction boundary has to wrap exactly the lock-then-rotate sequence
// of spec §4.5/§9 — the SELECT ... FOR UPDATE race mitigation — which
// needs a second repository round trip (locking by jti) the generic
// command handler shape does not model.
type RefreshCommand struct {
	TenantID  uuid.UUID
	RawToken  string
}

func (c RefreshCommand) Validate() error {
	if c.RawToken == "" {
		return apperr.Validation("refresh_token is required")
	}
	return nil
}

// RefreshLock extends RefreshLookup with the row-lock lookup the rotation
// algorithm needs once the presented token's jti is known.
type RefreshLock interface {
	RefreshLookup
	LockByJTI(ctx context.Context, jti string) (*tokens.RefreshTokenRow, error)
}

// Refresh implements spec §4.5's rotation algorithm end to end, including
// its §9 concurrency note. The transaction is always committed once the
// row is locked — even when tokens.Service.Refresh returns an error —
// because a replay attempt's family-wide revocation is itself the
// correct, durable side effect of that failed attempt; only a token-hash
// lookup miss, a LockByJTI error, a user lookup error and an outbox insert
// error roll back.
func (h *Handlers) Refresh(ctx context.Context, begin mediator.TxBeginner, cmd RefreshCommand) (*tokens.IssuedPair, error) {
	lockStore, ok := h.RefreshRepo.(RefreshLock)
	if !ok {
		return nil, apperr.Internal(errRefreshLockUnsupported)
	}

	txCtx, tx, err := begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	hash := tokens.HashRefreshToken(cmd.RawToken)
	presented, err := lockStore.GetByTokenHash(txCtx, hash)
	if err != nil {
		_ = tx.Rollback(txCtx)
		return nil, apperr.InvalidToken("refresh token not recognized")
	}

	locked, err := lockStore.LockByJTI(txCtx, presented.JTI)
	if err != nil {
		_ = tx.Rollback(txCtx)
		return nil, err
	}

	user, err := h.Users.GetByID(txCtx, locked.UserID)
	if err != nil {
		_ = tx.Rollback(txCtx)
		return nil, apperr.Internal(err)
	}

	perms := user.EffectivePermissions()
	permList := make([]string, 0, len(perms))
	for p, granted := range perms {
		if granted {
			permList = append(permList, p)
		}
	}
	roleList := make([]string, len(user.Roles))
	for i, r := range user.Roles {
		roleList[i] = string(r)
	}

	pair, produced, refreshErr := h.Tokens.Refresh(txCtx, locked, tokens.MintAccessInput{
		UserID:       user.ID,
		Email:        user.Email,
		TenantID:     user.TenantID,
		Roles:        roleList,
		Permissions:  permList,
		DepartmentID: user.DepartmentID,
	})

	// Whatever tokens.Service.Refresh already wrote (a single-token revoke
	// on success, or a family-wide revoke on replay, plus a SecurityAlert on
	// replay) must persist regardless of whether it also returns an error
	// to the caller — flush before commit so the alert is never lost even
	// though the overall call still fails for the client.
	for _, evt := range produced {
		if err := h.Outbox.Insert(txCtx, evt); err != nil {
			_ = tx.Rollback(txCtx)
			return nil, apperr.Internal(err)
		}
	}

	if commitErr := tx.Commit(txCtx); commitErr != nil {
		return nil, apperr.Internal(commitErr)
	}
	if refreshErr != nil {
		return nil, refreshErr
	}
	return pair, nil
}

type refreshLockUnsupportedError string

func (e refreshLockUnsupportedError) Error() string { return string(e) }

const errRefreshLockUnsupported = refreshLockUnsupportedError("authapp: configured RefreshRepo does not support row locking")

// LogoutCommand is POST /auth/logout's payload: revokes only the
// presented refresh token, never its family (spec §4.5). spec.md's HTTP
// surface table lists only "bearer required" for this endpoint; the raw
// refresh token in the body is recorded as a decision in DESIGN.md, since a bearer
// access token carries no persisted record to revoke and "revokes the
// presented token" must refer to the refresh token the client also holds.
type LogoutCommand struct {
	RawToken string
}

func (c LogoutCommand) Validate() error {
	if c.RawToken == "" {
		return apperr.Validation("refresh_token is required")
	}
	return nil
}

// Logout revokes the single refresh token record matching the presented
// raw value. A token that does not resolve (already revoked, expired, or
// unknown) is treated as already logged out rather than an error, since
// the endpoint's only contract is "this token no longer works".
func (h *Handlers) Logout(ctx context.Context, cmd LogoutCommand) error {
	hash := tokens.HashRefreshToken(cmd.RawToken)
	row, err := h.RefreshRepo.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil
	}
	return h.Tokens.Logout(ctx, row.ID)
}
