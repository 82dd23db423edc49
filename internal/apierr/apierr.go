// Package apierr classifies internal errors into the HTTP status table of
// the Collection Engine's error handling design.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP status a failure should surface as, alongside the
// wrapped cause. Handlers at the HTTP boundary unwrap it with As; everything
// below the boundary just returns plain Go errors and lets the apierr
// constructor (BadRequest, NotFound, Internal, ...) that built the error
// pick the status.
type Error struct {
	Status int
	Msg     string
	Details string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

func new(status int, msg string, cause error) *Error {
	return &Error{Status: status, Msg: msg, cause: cause}
}

// BadRequest — client schema violation: mismatched primary, non-indexed
// filter field, missing confirmation header, unparseable query.
func BadRequest(msg string, args ...any) *Error {
	return new(http.StatusBadRequest, fmt.Sprintf(msg, args...), nil)
}

// NotFound — unknown collection, missing primary key, empty result set.
func NotFound(msg string, args ...any) *Error {
	return new(http.StatusNotFound, fmt.Sprintf(msg, args...), nil)
}

// Forbidden — IP not present in the allowlist.
func Forbidden(msg string, args ...any) *Error {
	return new(http.StatusForbidden, fmt.Sprintf(msg, args...), nil)
}

// Internal — lock poisoned, writer creation failed, search execution
// failed; the server stays up, only the request fails.
func Internal(msg string, err error) *Error {
	return new(http.StatusInternalServerError, msg, err)
}

// InsufficientStorage — commit/flush failure, typically disk-full.
func InsufficientStorage(msg string, err error) *Error {
	return new(http.StatusInsufficientStorage, msg, err)
}

// As recovers an *Error from any error chain, defaulting to 500 when the
// chain carries no classification.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("internal error", err)
}
