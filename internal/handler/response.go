// Package handler translates HTTP requests into service calls and service
// results back into JSON responses.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, query, JSON body)
//  2. Call the service with the caller's identity from the auth session
//  3. Write the response (status code, headers, body)
//
// Handlers hold no business rules. Validation, ownership and token logic
// all live in the service package.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/tasklist/internal/apperror"
)

// maxBodyBytes caps request bodies. The largest legal body is a task text of
// 1000 characters, so 64 KiB is generous.
const maxBodyBytes = 64 << 10

// ErrorResponse is the shape of every error body:
//
//	{"error": "not_found", "message": "task not found with id abc"}
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to a status code.
//
// ERROR MAPPING:
//
//	ErrValidation      → 400
//	ErrUnauthenticated → 401
//	ErrInvalidToken    → 401
//	ErrNotFound        → 404
//	ErrConflict        → 409
//	anything else      → 500, generic message
//
// 500s never echo the error text: it may carry SQL, file paths or driver
// details. The full error goes to the log instead.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := http.StatusInternalServerError, ""
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status, errorType = http.StatusBadRequest, "validation_error"
		case errors.Is(err, apperror.ErrUnauthenticated), errors.Is(err, apperror.ErrInvalidToken):
			status, errorType = http.StatusUnauthorized, "unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status, errorType = http.StatusNotFound, "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status, errorType = http.StatusConflict, "conflict"
		}

		if errorType != "" {
			msg := appErr.Message
			if errors.Is(err, apperror.ErrInvalidToken) {
				// Same words as auth.RequireAuth's rejection.
				msg = "valid authentication required"
			}
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: msg,
				Field:   appErr.Field,
			})
			return
		}
	}

	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "an internal error occurred",
	})
}

// decodeJSON reads a single JSON object from the body into dst. Any decode
// problem comes back as a validation error so it maps to 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("", fmt.Sprintf("request body must be %d bytes or fewer", maxBodyBytes))
		}
		return apperror.ValidationFailed("", "request body must be a JSON object")
	}
	return nil
}
