package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/tokens"
)

// RefreshTokenRepo backs tokens.RefreshStore (spec §4.5). LockByJTI and
// the mutating methods below are only safe to call within a transaction
// bound via repo.WithTx — authapp.Handlers.Refresh opens one itself
// (outside the mediator) and wraps LockByJTI..Insert in it, implementing spec §9's
// "wrapping steps 1-4 of §4.5 in a transaction with SELECT ... FOR UPDATE"
// double-use race mitigation.
type RefreshTokenRepo struct {
	pool *pgxpool.Pool
}

const refreshColumns = `id, user_id, tenant_id, token_hash, jti, family_id, parent_token_id, is_revoked, expires_at, created_at`

func scanRefreshRow(row rowScanner) (*tokens.RefreshTokenRow, error) {
	var t tokens.RefreshTokenRow
	if err := row.Scan(&t.ID, &t.UserID, &t.TenantID, &t.TokenHash, &t.JTI, &t.FamilyID,
		&t.ParentTokenID, &t.IsRevoked, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, mapNoRows(err)
	}
	return &t, nil
}

// LockByJTI fetches the refresh token row FOR UPDATE by its jti, within
// whatever transaction ctx carries.
func (r *RefreshTokenRepo) LockByJTI(ctx context.Context, jti string) (*tokens.RefreshTokenRow, error) {
	row := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE jti = $1 FOR UPDATE`, jti)
	t, err := scanRefreshRow(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.InvalidToken("refresh token not recognized")
		}
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// GetByTokenHash looks a row up by its stored digest, the entry point for
// a presented raw refresh token before its jti is known.
func (r *RefreshTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*tokens.RefreshTokenRow, error) {
	row := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	t, err := scanRefreshRow(row)
	if err != nil {
		if err == ErrNotFound {
			return nil, apperr.InvalidToken("refresh token not recognized")
		}
		return nil, apperr.Internal(err)
	}
	return t, nil
}

// RevokeFamily revokes every token in a family with one statement, per
// spec §9: "revocation propagates by a single UPDATE ... WHERE family_id
// = $f" — never materialize the ancestor/descendant tree in memory.
func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = true WHERE family_id = $1 AND is_revoked = false`, familyID)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Revoke revokes a single token (spec §4.5's logout and rotation steps).
func (r *RefreshTokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = true WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Insert persists a newly minted refresh token row.
func (r *RefreshTokenRepo) Insert(ctx context.Context, row *tokens.RefreshTokenRow) error {
	_, err := connFor(ctx, r.pool).Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, tenant_id, token_hash, jti, family_id, parent_token_id, is_revoked, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.ID, row.UserID, row.TenantID, row.TokenHash, row.JTI, row.FamilyID,
		row.ParentTokenID, row.IsRevoked, row.ExpiresAt, row.CreatedAt)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
