// Package httpapi implements the HTTP boundary of spec §4.8/§6: the
// ordered middleware pipeline, the response envelope, and every
// versioned REST handler. Grounded on
// erauner12-toolbridge-api/internal/httpapi's router/middleware/
// ratelimit files throughout — route-group shape, correlation-id
// middleware, and the rate limiter's header/Retry-After contract all
// follow the teacher; the token-bucket storage backend is swapped for a
// Redis sliding window per spec §4.8, and every handler is rewritten for
// this module's auth/task domain and `{success, data, metadata}` /
// `{success, error, metadata}` envelope instead of the teacher's ad hoc
// JSON writes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oranofz/taskmanagement/internal/apperr"
	"github.com/oranofz/taskmanagement/internal/authapp"
	"github.com/oranofz/taskmanagement/internal/cache"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/password"
	"github.com/oranofz/taskmanagement/internal/repo"
	"github.com/oranofz/taskmanagement/internal/tenant"
	"github.com/oranofz/taskmanagement/internal/tokens"
)

// parseOptionalRFC3339 parses an RFC3339 timestamp pointer from a JSON
// request body field, tolerating a nil or empty value.
func parseOptionalRFC3339(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, apperr.Validation("timestamp is not a valid RFC3339 value")
	}
	return &t, nil
}

// RateLimitConfig mirrors the teacher's RateLimitInfo shape, generalized
// to the Redis sliding window of spec §4.8: MaxRequests per WindowSeconds,
// per `rl:{tenant}:{route}:{user_or_ip}` key.
type RateLimitConfig struct {
	WindowSeconds int
	MaxRequests   int
}

// DefaultRateLimitConfig matches spec §6's default 600 req/min guidance.
var DefaultRateLimitConfig = RateLimitConfig{WindowSeconds: 60, MaxRequests: 600}

// Server holds every dependency the HTTP handlers close over.
type Server struct {
	Repos        *repo.Repos
	Cache        *cache.Cache
	Mediator     *mediator.Mediator
	TenantResolver *tenant.Resolver
	Tokens       *tokens.Service
	PasswordPolicy *password.Policy
	Auth         *authapp.Handlers

	RateLimit RateLimitConfig
	CORSOrigins []string
	MFAIssuer string

	outboxDeadLetterCount func() int64
}

// NewServer builds a Server. deadLetterCount is surfaced on /health (see
// health.go); pass nil to omit it.
func NewServer(deadLetterCount func() int64) *Server {
	return &Server{outboxDeadLetterCount: deadLetterCount}
}

// envelope is the response wire shape of spec §6: every response carries
// `success` plus either `data` or `error`, and a `metadata` object.
type envelope struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *envelopeError `json:"error,omitempty"`
	Metadata metadata       `json:"metadata"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type metadata struct {
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp"`
}

func newMetadata(r *http.Request) metadata {
	return metadata{CorrelationID: GetCorrelationID(r.Context()), Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// writeData writes a success envelope with the given HTTP status and data
// payload.
func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Metadata: newMetadata(r)}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to encode json response")
	}
}

// writeAppErr maps an *apperr.Error to its HTTP status and writes an
// error envelope (spec §7's code -> status table).
func writeAppErr(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err)
	}
	if ae.Code == apperr.CodeInternal {
		log.Ctx(r.Context()).Error().Err(ae.Err).Msg("internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.HTTPStatus())
	body := envelope{
		Success: false,
		Error: &envelopeError{
			Code:    string(ae.Code),
			Message: ae.Message,
			Details: ae.Details,
		},
		Metadata: newMetadata(r),
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Ctx(r.Context()).Error().Err(encErr).Msg("failed to encode json error response")
	}
}

// decodeJSON parses the request body into dest, returning a VALIDATION_ERROR
// apperr on any malformed input.
func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	return nil
}
