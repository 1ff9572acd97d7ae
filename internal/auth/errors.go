// Package auth implements password hashing, signed identity tokens, login
// authentication and bearer-token identity resolution.
package auth

import (
	"errors"
)

// Outcomes of the core operations. Handlers map them to HTTP statuses; only
// ErrUnauthorized / ErrInvalidCredentials are ever shown to clients.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")

	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrSubjectNotFound  = errors.New("token subject not found")
	ErrUnauthorized     = errors.New("unauthorized")

	ErrInvalidDigest   = errors.New("invalid password digest")
	ErrInvalidLifetime = errors.New("token lifetime must be positive")

	ErrSecretMissing        = errors.New("signing secret missing")
	ErrSecretTooShort       = errors.New("signing secret too short")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// AuthError is returned by Resolver.Resolve for every rejected token. It
// always matches ErrUnauthorized; Cause carries the internal reason and is
// meant for logs only.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string { return ErrUnauthorized.Error() }

// Is makes errors.Is(err, ErrUnauthorized) hold without exposing Cause
// through Unwrap.
func (e *AuthError) Is(target error) bool { return target == ErrUnauthorized }

func unauthorized(cause error) error { return &AuthError{Cause: cause} }

// Reason returns a short stable label for err, used in logs and metric labels.
func Reason(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		err = ae.Cause
	}
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrTooManyAttempts):
		return "rate_limited"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, ErrInvalidDigest):
		return "invalid_digest"
	default:
		return "error"
	}
}
