// Package apperror defines the domain errors shared by every layer.
//
// Services and repositories return these; only the HTTP layer decides what
// status code each one becomes (see handler/response.go).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrUnauthenticated is returned when an email/password pair does not
	// identify a user. It deliberately covers both "no such email" and
	// "wrong password".
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidToken covers every reason a session token can be rejected:
	// bad signature, malformed payload, unknown user, or a token that was
	// revoked from the user's list.
	ErrInvalidToken = errors.New("invalid token")

	// ErrPersistence wraps a storage failure the caller cannot fix.
	ErrPersistence = errors.New("persistence failure")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // safe to show to clients
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying error, for logs only
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is works against
// either one.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// DuplicateEmail is returned by user stores when the unique email
// constraint rejects an insert.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("email %s is already registered", email),
		Field:   "email",
	}
}

// Unauthenticated returns the single generic login failure. The message
// never says which half of the credentials was wrong.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "invalid email or password",
	}
}

// InvalidToken returns the generic token rejection. cause is kept for logs.
func InvalidToken(cause error) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "invalid or revoked token",
		Cause:   cause,
	}
}

// Persistence wraps a storage error. op names what was being attempted,
// e.g. "saving token".
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: op + " failed",
		Cause:   cause,
	}
}
