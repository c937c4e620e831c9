// Package apperror defines the application's error taxonomy.
//
// Every error that crosses a layer boundary is an *AppError wrapping one of
// the sentinel errors below. Callers branch on the sentinel with errors.Is and
// show AppError.Message to the user:
//
//	if errors.Is(err, apperror.ErrValidation) { ... }
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrStorage    = errors.New("storage error")
)

type AppError struct {
	Err     error  // sentinel (ErrNotFound, ErrValidation, ErrStorage)
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error reported by a collaborator
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource string, id int64) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %d", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// StorageFailed reports a read or write failure of the underlying store.
// The message carries the store's own message, e.g.
// "error saving snippet: quota exceeded".
func StorageFailed(action string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: fmt.Sprintf("error %s: %s", action, cause.Error()),
		Cause:   cause,
	}
}

// Message returns the human-readable message of the first *AppError in err's
// chain, or err.Error() when there is none.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
