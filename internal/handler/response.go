package handler

// RESPONSE HELPERS:
// Every handler in this package answers through writeJSON and writeError.
//
// WHY HELPERS?
// Without them each handler would repeat the same three steps:
//   w.Header().Set("Content-Type", "application/json")
//   w.WriteHeader(status)
//   gojson.NewEncoder(w).Encode(data)
//
// With them a handler body ends in one line:
//   writeJSON(w, http.StatusCreated, snippet)
//   writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response has the same shape, whatever the status code:
//   {"error": "not_found", "message": "snippet not found with id 3"}
//   {"error": "validation_error", "message": "title is required", "field": "title"}
//
// A client can always read "error" to decide what happened and show
// "message" to the user. "field" is only present for validation errors.

import (
	"errors"
	"log/slog"
	"net/http"

	gojson "github.com/goccy/go-json"

	"github.com/sakif/snippet-sync/internal/apperror"
)

// maxBodyBytes caps request bodies. Snippets are text; 1 MiB is plenty.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and the status code must be set BEFORE the body. The first
// w.Write (which Encode calls) sends the headers, and any header set after
// that is silently dropped. So the order is always:
//  1. w.Header().Set(...)    set headers
//  2. w.WriteHeader(status)  send status and headers
//  3. Encode(data)           send body
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := gojson.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so the status cannot change now.
			// All we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// The service returns apperror.ErrValidation, ErrNotFound and ErrStorage.
// This is the one place they become 400, 404 and 503.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service is shared by several front ends and none of the others speak
// HTTP:
// - this handler maps ErrNotFound to 404
// - the background router maps it to {"error": "..."}
// - the CLI prints the message and exits non-zero
//
// errors.Is() UNWRAPPING:
// errors.Is(err, target) follows Unwrap() down the whole chain, so a
// wrapped error still matches its sentinel:
//
//	service returns: fmt.Errorf("creating snippet: %w", apperror.ValidationFailed(...))
//	which wraps:     AppError{Err: ErrValidation, Message: "..."}
//	errors.Is walks: outer error, then AppError, then ErrValidation: match
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	// errors.As walks the same chain but fills appErr with the value it
	// finds, which carries the message and field for the body.
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrStorage):
			// The store is shared and may be temporarily unavailable or full.
			status = http.StatusServiceUnavailable // 503
			errorType = "storage_error"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Not an AppError: answer a generic 500. Never expose the raw error, it
	// may carry file paths or storage details.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return gojson.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
