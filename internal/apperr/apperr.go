// Package apperr defines the stable error taxonomy (spec §7) used across
// the service. Handlers and repositories return these typed errors instead
// of ad hoc strings so the HTTP boundary can map them to a fixed status
// code and machine-readable code without guessing.
package apperr

import "fmt"

// Code is one of the stable machine codes from spec §7.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeMFARequired        Code = "MFA_REQUIRED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeTenantMismatch     Code = "TENANT_MISMATCH"
	CodeInternal           Code = "INTERNAL"
)

// httpStatus maps each stable code to its HTTP status per spec §7's table.
var httpStatus = map[Code]int{
	CodeValidation:       400,
	CodeUnauthenticated:  401,
	CodeInvalidToken:     401,
	CodeMFARequired:      423,
	CodeForbidden:        403,
	CodeNotFound:         404,
	CodeConflict:         409,
	CodeInvalidTransition: 409,
	CodeRateLimited:      429,
	CodeTenantMismatch:   400,
	CodeInternal:         500,
}

// Error is the typed error every layer above the repository boundary should
// return. Message is safe to surface to the client; Details is optional
// structured context (e.g. field validation errors).
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error // wrapped cause, never serialized
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status code this error maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func WithDetails(code Code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func Validation(message string) *Error   { return New(CodeValidation, message) }
func Unauthenticated(message string) *Error { return New(CodeUnauthenticated, message) }
func InvalidToken(message string) *Error { return New(CodeInvalidToken, message) }
func MFARequired(message string) *Error  { return New(CodeMFARequired, message) }
func Forbidden(message string) *Error    { return New(CodeForbidden, message) }
func NotFound(message string) *Error     { return New(CodeNotFound, message) }
func Conflict(message string) *Error     { return New(CodeConflict, message) }
func InvalidTransition(message string) *Error { return New(CodeInvalidTransition, message) }
func RateLimited(message string) *Error  { return New(CodeRateLimited, message) }
func TenantMismatch(message string) *Error { return New(CodeTenantMismatch, message) }
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// As attempts to extract an *Error from err, returning ok=false for
// anything unrecognized — callers should map that case to CodeInternal.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	ae, ok := err.(*Error)
	return ae, ok
}
