// Package apperr defines the typed errors the tree manager core surfaces:
// a stable code, a human message, and the HTTP status the transport layer
// should map it to.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a typed application error carrying a stable code and the HTTP
// status the REST layer should translate it to.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	return e.Message
}

func New(code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Core error kinds.
var (
	ErrTaskTypeNotAvailable = New("TASK_REQUESTED_TYPE_NOT_AVAILABLE", "no task of the requested type is currently available", http.StatusServiceUnavailable)
	ErrInvalidResponseType  = New("TASK_INVALID_RESPONSE_TYPE", "interaction submission did not match any known kind", http.StatusBadRequest)
	ErrUserNotEnabled       = New("USER_NOT_ENABLED", "user is not enabled to request tasks", http.StatusForbidden)
)

// Persistence-level sentinels that propagate unchanged.
var (
	ErrTreeNotFound    = errors.New("apperr: message tree not found")
	ErrMessageNotFound = errors.New("apperr: message not found")
	ErrTaskNotFound    = errors.New("apperr: task not found")
	ErrAlreadyExists   = errors.New("apperr: resource already exists")
)

// As is a convenience wrapper over errors.As for the *Error type, used by
// the REST translation layer.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
