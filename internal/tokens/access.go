// Package tokens implements the Token Service of spec §4.5: RS256 access
// tokens and rotating, family-tracked opaque refresh tokens. The
// kid-aware multi-key verification path is adapted from
// erauner12-toolbridge-api/internal/auth/jwt.go's jwksCache/ValidateToken,
// generalized from remote JWKS fetch to a locally loaded, on-disk RSA key
// pair per SPEC_FULL.md's DOMAIN STACK decision (this service mints its
// own tokens rather than trusting an upstream IdP, so there is no JWKS
// endpoint to poll — the keys are loaded once at startup).
package tokens

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/apperr"
)

// AccessClaims is the claim set of spec §4.5: sub, email, tenant_id,
// roles, permissions, department_id?, jti, iat, exp.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string          `json:"email"`
	TenantID     string          `json:"tenant_id"`
	Roles        []string        `json:"roles"`
	Permissions  []string        `json:"permissions"`
	DepartmentID *string         `json:"department_id,omitempty"`
}

// KeyPair is one RSA signing key, identified by kid. Multiple KeyPairs may
// be trusted at once to support key rotation (spec §4.5).
type KeyPair struct {
	Kid        string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// LoadKeyPair reads a PEM-encoded RSA private key from privatePath and
// derives its public key from it; no separate public-key file is read.
// kid is computed from the public key's SHA-256 fingerprint so it stays
// stable across restarts without extra configuration.
func LoadKeyPair(privatePath string) (*KeyPair, error) {
	raw, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("reading RSA private key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("RSA private key file is not valid PEM")
	}

	var priv *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		key, parseErr := x509.ParsePKCS8PrivateKey(block.Bytes)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing RSA private key: %w", parseErr)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		priv = rsaKey
	}
	if err != nil {
		return nil, fmt.Errorf("parsing RSA private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("deriving RSA public key: %w", err)
	}
	sum := sha256.Sum256(pubDER)
	kid := hex.EncodeToString(sum[:8])

	return &KeyPair{Kid: kid, PrivateKey: priv, PublicKey: &priv.PublicKey}, nil
}

// KeySet is every currently trusted signing/verification key, keyed by kid.
type KeySet struct {
	Active string // kid used for new tokens
	Keys   map[string]*KeyPair
}

// NewKeySet builds a KeySet whose active signing key is keys[0]; any
// additional keys are trusted for verification only (rotation support).
func NewKeySet(keys ...*KeyPair) *KeySet {
	ks := &KeySet{Keys: map[string]*KeyPair{}}
	for i, k := range keys {
		ks.Keys[k.Kid] = k
		if i == 0 {
			ks.Active = k.Kid
		}
	}
	return ks
}

// Service mints and verifies access tokens and rotates refresh tokens.
type Service struct {
	keys          *KeySet
	accessTTL     time.Duration
	refreshTTL    time.Duration
	refreshStore  RefreshStore
}

// RefreshStore is the persistence surface tokens.Service needs for
// refresh-token rotation (implemented by internal/repo). LockByJTI,
// RevokeFamily, Revoke and Insert must run inside one transaction holding
// a row lock on the presented token, per spec §9's double-use race
// mitigation.
type RefreshStore interface {
	// LockByJTI fetches the refresh token row for update, within a
	// transaction the caller begins and commits/rolls back.
	LockByJTI(ctx context.Context, jti string) (*RefreshTokenRow, error)
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
	Revoke(ctx context.Context, id uuid.UUID) error
	Insert(ctx context.Context, row *RefreshTokenRow) error
}

// RefreshTokenRow mirrors model.RefreshToken's shape at the level tokens
// needs (kept separate from model.RefreshToken to avoid an import cycle
// between tokens and repo; internal/repo adapts between the two).
type RefreshTokenRow struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TenantID      uuid.UUID
	TokenHash     string
	JTI           string
	FamilyID      uuid.UUID
	ParentTokenID *uuid.UUID
	IsRevoked     bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// NewService builds a token Service.
func NewService(keys *KeySet, accessTTL, refreshTTL time.Duration, refreshStore RefreshStore) *Service {
	return &Service{keys: keys, accessTTL: accessTTL, refreshTTL: refreshTTL, refreshStore: refreshStore}
}

// MintAccessInput is the user-derived data baked into a new access token.
type MintAccessInput struct {
	UserID       uuid.UUID
	Email        string
	TenantID     uuid.UUID
	Roles        []string
	Permissions  []string
	DepartmentID *uuid.UUID
}

// MintAccess signs a new RS256 access token with the Service's configured
// access-token TTL.
func (s *Service) MintAccess(in MintAccessInput) (string, error) {
	active, ok := s.keys.Keys[s.keys.Active]
	if !ok {
		return "", errors.New("tokens: no active signing key configured")
	}

	now := time.Now()
	var dept *string
	if in.DepartmentID != nil {
		d := in.DepartmentID.String()
		dept = &d
	}

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
		Email:        in.Email,
		TenantID:     in.TenantID.String(),
		Roles:        in.Roles,
		Permissions:  in.Permissions,
		DepartmentID: dept,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = active.Kid
	return tok.SignedString(active.PrivateKey)
}

// VerifyAccess validates signature, algorithm, kid, and expiry, then
// checks the token's tenant_id claim against expectedTenantID when it is
// non-nil (spec §4.5: "Verification rejects ... tenant-mismatched
// tokens."). A nil expectedTenantID skips that check, used only by the
// Tenant Resolver itself, which must read the claim before it knows which
// tenant to compare against.
func (s *Service) VerifyAccess(tokenString string, expectedTenantID *uuid.UUID) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		key, ok := s.keys.Keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id: %s", kid)
		}
		return key.PublicKey, nil
	})
	if err != nil || !tok.Valid {
		return nil, apperr.InvalidToken("access token failed verification")
	}

	if expectedTenantID != nil && claims.TenantID != expectedTenantID.String() {
		return nil, apperr.TenantMismatch("access token tenant_id does not match request tenant context")
	}

	return claims, nil
}

// newOpaqueToken generates a >=256-bit high-entropy refresh token value.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashRefreshToken computes the one-way digest stored in place of the raw
// refresh token value (spec §3: "the raw value never persists").
func hashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
