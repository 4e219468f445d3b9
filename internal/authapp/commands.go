// Package authapp implements the Auth Handlers of spec §4's table and
// §6's auth endpoints: Register, Login, Refresh, Logout, EnableMFA,
// VerifyMFA. Each is a command message plus a method on Handlers,
// grounded on spec §4.4/§4.5/§4.9 directly — no pack repo names an
// "auth application service" package. The handlers are called directly
// by internal/httpapi; they are not registered with the mediator and do
// not follow its CommandHandler/QueryHandler signatures.
package authapp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/events"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/mfa"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/password"
	"github.com/oranofz/taskmanagement/internal/tokens"
)

// RegisterCommand is POST /auth/register's payload.
type RegisterCommand struct {
	TenantID uuid.UUID
	Email    string
	Username string
	Password string
}

// Validate enforces request-shape checks ahead of the password policy
// and persistence, matching the mediator pipeline's schema-validate stage.
func (c RegisterCommand) Validate() error {
	if c.Email == "" || c.Username == "" || c.Password == "" || c.TenantID == uuid.Nil {
		return apperr.Validation("email, username, password and tenant_id are required")
	}
	return nil
}

// UserRepo is the persistence surface Register/Login need from
// internal/repo.UserRepo, narrowed to an interface to keep authapp
// testable without a live database.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, secret string) error
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// OutboxWriter is the narrow persistence surface authapp needs to deliver
// the events its handlers produce: internal/repo.OutboxRepo.Insert, so a
// command's domain event reaches the same outbox table and dispatch path
// as every mediator-routed Task command (spec §4.3's "same transaction as
// the aggregate mutation" guarantee, reused here for the auth handlers
// that run outside the generic mediator).
type OutboxWriter interface {
	Insert(ctx context.Context, e events.Event) error
}

// Handlers bundles the dependencies every auth command/query handler
// closes over.
type Handlers struct {
	Users       UserRepo
	Policy      *password.Policy
	Tokens      *tokens.Service
	RefreshRepo RefreshLookup
	Outbox      OutboxWriter
}

// RefreshLookup is the narrow surface authapp.Refresh needs beyond
// tokens.RefreshStore: looking a presented raw token up by its hash
// before the jti (and thus the row-lock target) is known.
type RefreshLookup interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*tokens.RefreshTokenRow, error)
}

// Register handles RegisterCommand: validate policy, hash, persist, and
// emit UserRegistered (spec §4.3, §6) into the outbox within the same
// transaction as the Users.Create row — the same same-transaction
// guarantee spec §4.3 gives every mediator-routed command, reproduced by
// hand here since Register runs outside the generic mediator (it needs no
// authorizer, but does need the transactional outbox write Refresh
// already models).
func (h *Handlers) Register(ctx context.Context, begin mediator.TxBeginner, cmd RegisterCommand) (*model.User, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := h.Policy.Validate(ctx, cmd.Password); err != nil {
		return nil, err
	}

	hash, err := password.Hash(cmd.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := time.Now()
	u := &model.User{
		ID:                   uuid.New(),
		TenantID:             cmd.TenantID,
		Email:                cmd.Email,
		Username:             cmd.Username,
		PasswordHash:         hash,
		Roles:                []model.Role{model.RoleMember},
		IsActive:             true,
		LastPasswordChangeAt: now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	txCtx, tx, err := begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := h.Users.Create(txCtx, u); err != nil {
		_ = tx.Rollback(txCtx)
		return nil, err
	}

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventUserRegistered,
		AggregateID: u.ID,
		TenantID:    u.TenantID,
		Payload:     map[string]any{"email": u.Email, "username": u.Username},
		Version:     1,
		OccurredAt:  now,
	}
	if err := h.Outbox.Insert(txCtx, evt); err != nil {
		_ = tx.Rollback(txCtx)
		return nil, apperr.Internal(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// LoginQuery is POST /auth/login's payload. It is modeled as a query
// because it mutates nothing domain-shaped of its own (last_login_at is a
// side effect, not the point of the operation) and therefore skips the
// mediator's transaction stage — consistent with spec §4.9's "Queries skip
// transaction and outbox". UserLoggedIn is still delivered: Login writes it
// to the outbox directly (outside any transaction, since a query opens
// none), the same table the mediator's OutboxFlusher writes into, so the
// outbox worker and audit subscriber see it exactly like any other event.
type LoginQuery struct {
	TenantID          uuid.UUID
	Email             string
	Password          string
	MFACode           string
	DeviceFingerprint string
}

func (q LoginQuery) Validate() error {
	if q.Email == "" || q.Password == "" {
		return apperr.Validation("email and password are required")
	}
	return nil
}

// Login verifies credentials and MFA, then mints a new token family.
func (h *Handlers) Login(ctx context.Context, q LoginQuery) (*tokens.IssuedPair, error) {
	u, err := h.Users.GetByEmail(ctx, q.Email)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	if !u.IsActive {
		return nil, apperr.Unauthenticated("invalid email or password")
	}

	ok, newHash, err := password.VerifyAndRehash(q.Password, u.PasswordHash)
	if err != nil || !ok {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	if newHash != "" {
		_ = h.Users.UpdatePasswordHash(ctx, u.ID, newHash)
	}

	if u.MFAEnabled {
		if q.MFACode == "" {
			return nil, apperr.MFARequired("multi-factor authentication code required")
		}
		if !mfa.Verify(u.MFASecret, q.MFACode) {
			return nil, apperr.Unauthenticated("invalid multi-factor authentication code")
		}
	}

	_ = h.Users.TouchLastLogin(ctx, u.ID)

	perms := u.EffectivePermissions()
	permList := make([]string, 0, len(perms))
	for p, granted := range perms {
		if granted {
			permList = append(permList, p)
		}
	}
	roleList := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roleList[i] = string(r)
	}

	var fp *string
	if q.DeviceFingerprint != "" {
		fp = &q.DeviceFingerprint
	}

	pair, err := h.Tokens.IssueNewFamily(ctx, tokens.MintAccessInput{
		UserID:       u.ID,
		Email:        u.Email,
		TenantID:     u.TenantID,
		Roles:        roleList,
		Permissions:  permList,
		DepartmentID: u.DepartmentID,
	}, fp)
	if err != nil {
		return nil, err
	}

	evt := events.Event{
		ID:          uuid.New(),
		Type:        events.EventUserLoggedIn,
		AggregateID: u.ID,
		TenantID:    u.TenantID,
		Payload:     map[string]any{"actor_user_id": u.ID.String(), "email": u.Email},
		Version:     1,
		OccurredAt:  time.Now(),
	}
	if err := h.Outbox.Insert(ctx, evt); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", u.ID.String()).Msg("failed to persist UserLoggedIn event")
	}

	return pair, nil
}
