// Package service contains the business rules of the task-list service.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)       → parses requests, writes responses
//	Service (this)       → validates, enforces ownership, orchestrates
//	Repository (storage) → reads/writes a backend
//
// Services take repository interfaces, never a concrete backend, so the
// same rules run on SQLite, PostgreSQL or the in-memory store. They return
// apperror values and know nothing about HTTP status codes.
//
// The auth core lives here as three types with a strict dependency order:
//
//	CredentialStore  (email + password → user)
//	TokenManager     (user ↔ signed, revocable session token)
//	auth.RequireAuth (HTTP gate, depends on TokenManager)
package service

import (
	"errors"

	"github.com/sakif/tasklist/internal/apperror"
)

// isClientOutcome reports whether err is an expected, client-caused result
// rather than a server fault. Used for metric result labels.
func isClientOutcome(err error) bool {
	return errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrConflict) ||
		errors.Is(err, apperror.ErrUnauthenticated) ||
		errors.Is(err, apperror.ErrInvalidToken)
}
