// Package password implements the Password Service of spec §4.4: policy
// enforcement, memory-hard hashing with embedded parameters, constant-time
// verification, and a k-anonymity breach-oracle check. Hashing is grounded
// on github.com/alexedwards/argon2id (sourced from the
// uncord-chat-uncord-server manifest in other_examples/, the only pack repo
// wiring a password-hashing dependency); the breach oracle's k-anonymity
// HTTP shape is a stdlib client since spec.md treats the oracle itself as
// an opaque external service, not a library concern.
package password

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"

	"github.com/oranofz/taskmanagement/internal/apperr"
)

// params mirrors spec §4.4's memory-hard hashing parameters. They are
// embedded by argon2id.CreateHash directly in the returned hash string,
// so a future parameter change is migration-safe without a data migration.
var params = &argon2id.Params{
	Memory:      65536,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Policy enforces spec §4.4's pre-hash password rules.
type Policy struct {
	Oracle *BreachOracle
}

// Validate checks length and character-class requirements, then — unless
// the oracle is nil or configured to skip — the breach oracle. Returns an
// *apperr.Error with CodeValidation on any failure.
func (p *Policy) Validate(ctx context.Context, plain string) error {
	if len(plain) < 12 {
		return apperr.Validation("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return apperr.Validation("password must contain upper, lower, digit, and special characters")
	}

	if p.Oracle == nil {
		return nil
	}
	breached, err := p.Oracle.IsBreached(ctx, plain)
	if err != nil {
		if p.Oracle.FailOpen {
			log.Ctx(ctx).Warn().Err(err).Msg("breach oracle unavailable, skipping check (fail-open)")
			return nil
		}
		return apperr.Wrap(apperr.CodeValidation, "unable to verify password against breach database", err)
	}
	if breached {
		return apperr.Validation("password has appeared in a known data breach")
	}
	return nil
}

// Hash produces an argon2id hash string with params embedded, per
// spec §4.4.
func Hash(plain string) (string, error) {
	return argon2id.CreateHash(plain, params)
}

// VerifyAndRehash checks plain against stored and, if it matches but was
// hashed with different parameters than the current params, returns a
// freshly computed hash the caller should persist (spec §4.4's
// verify_and_rehash). newHash is empty when no rehash is needed.
func VerifyAndRehash(plain, stored string) (ok bool, newHash string, err error) {
	match, usedParams, err := argon2id.CheckHash(plain, stored)
	if err != nil {
		return false, "", err
	}
	if !match {
		return false, "", nil
	}
	if *usedParams == *params {
		return true, "", nil
	}

	rehashed, hashErr := Hash(plain)
	if hashErr != nil {
		// verification already succeeded; a rehash failure should not
		// fail the login, just skip the opportunistic upgrade.
		log.Warn().Err(hashErr).Msg("opportunistic rehash failed")
		return true, "", nil
	}
	return true, rehashed, nil
}

// BreachOracle is a k-anonymity client for a pwned-passwords-style
// service (spec §4.4, §6): send the first 5 hex chars of SHA1(password),
// receive candidate suffixes, match the full digest locally so the
// plaintext password (and its full hash) never leaves the process.
type BreachOracle struct {
	BaseURL  string
	Timeout  time.Duration
	FailOpen bool
	client   *http.Client
}

// NewBreachOracle builds a client bound to baseURL (expected to accept a
// GET to "{baseURL}/{prefix}" and return "SUFFIX:COUNT" lines).
func NewBreachOracle(baseURL string, timeout time.Duration, failOpen bool) *BreachOracle {
	return &BreachOracle{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Timeout:  timeout,
		FailOpen: failOpen,
		client:   &http.Client{Timeout: timeout},
	}
}

// IsBreached reports whether plain's SHA-1 digest appears in the oracle's
// suffix list for its 5-character hex prefix.
func (b *BreachOracle) IsBreached(ctx context.Context, plain string) (bool, error) {
	sum := sha1.Sum([]byte(plain))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	cctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, fmt.Sprintf("%s/%s", b.BaseURL, prefix), nil)
	if err != nil {
		return false, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("breach oracle returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if strings.EqualFold(parts[0], suffix) {
			return true, nil
		}
	}
	return false, nil
}
