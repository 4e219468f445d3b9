// Package mfa implements TOTP-based multi-factor authentication (spec
// §4.5's MFA gating, endpoints §6 auth/mfa/enable and auth/mfa/verify).
// Grounded on github.com/pquerna/otp, sourced from the same
// uncord-chat-uncord-server manifest as internal/password's argon2id
// dependency — the TOTP algorithm itself is explicitly out of scope per
// spec.md's Non-goals, so this package is a thin wrapper, not a
// reimplementation.
package mfa

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// GenerateSecret creates a new TOTP secret and its otpauth:// enrollment
// URI for the given account (spec §6: `POST /auth/mfa/enable` response
// shape `{secret, otpauth_uri}`).
func GenerateSecret(issuer, accountEmail string) (secret string, otpauthURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountEmail,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Verify checks a submitted code against secret using the default TOTP
// parameters (30s step, 6 digits, SHA1) — the algorithm itself is not a
// spec concern, only that enabling MFA requires one successful
// verification before mfa_enabled flips true.
func Verify(secret, code string) bool {
	return totp.Validate(code, secret)
}

// Algorithm exposes the otp package's default algorithm constant so
// callers needing it for logging/diagnostics don't need a separate import.
var Algorithm = otp.AlgorithmSHA1
