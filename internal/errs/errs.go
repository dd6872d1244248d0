// Package errs defines the error taxonomy shared by the dispatch core.
// Validation and not-found errors surface to the caller; search
// exhaustion (no office / no shipper) feeds the retry queue instead of
// failing the request hard.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound               Code = "NOT_FOUND"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeNoShipperAvailable     Code = "NO_SHIPPER_AVAILABLE"
	CodeNoOfficeFound          Code = "NO_OFFICE_FOUND"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeConcurrencyConflict    Code = "CONCURRENCY_CONFLICT"
	CodeBadRequest             Code = "BAD_REQUEST"
)

type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string, id uint64) *Error {
	return New(CodeNotFound, "%s %d not found", what, id)
}

func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidStateTransition, "cannot transition from %s to %s", from, to)
}

// CodeOf extracts the taxonomy code, or "" for plain errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps a taxonomy code to the status the API layer returns.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidStateTransition, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNoShipperAvailable, CodeNoOfficeFound:
		return http.StatusAccepted // work continues in the background
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
