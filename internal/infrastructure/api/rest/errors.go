package rest

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/oasst/treemanager/internal/application/consensus"
	"github.com/oasst/treemanager/internal/domain/apperr"
)

// APIError is the wire shape of an error response.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: httpStatus}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized     = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden        = NewAPIError("FORBIDDEN", "Access denied", http.StatusForbidden)
	ErrNotFound         = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrValidationFailed = NewAPIError("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
)

// TranslateError maps a core or persistence error to the wire APIError,
// following the same errors.As/errors.Is cascade the teacher's REST layer
// uses.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	if coreErr, ok := apperr.As(err); ok {
		return NewAPIError(coreErr.Code, coreErr.Message, coreErr.HTTPStatus)
	}

	switch {
	case errors.Is(err, apperr.ErrTreeNotFound):
		return NewAPIError("TREE_NOT_FOUND", "message tree not found", http.StatusNotFound)
	case errors.Is(err, apperr.ErrMessageNotFound):
		return NewAPIError("MESSAGE_NOT_FOUND", "message not found", http.StatusNotFound)
	case errors.Is(err, apperr.ErrTaskNotFound):
		return NewAPIError("TASK_NOT_FOUND", "task not found", http.StatusNotFound)
	case errors.Is(err, apperr.ErrAlreadyExists):
		return NewAPIError("ALREADY_EXISTS", "resource already exists", http.StatusConflict)
	case errors.Is(err, consensus.ErrCommonSetTooSmall):
		return NewAPIError("CONSENSUS_COMMON_SET_TOO_SMALL", "not enough common candidates to compute consensus", http.StatusUnprocessableEntity)
	case errors.Is(err, sql.ErrNoRows):
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "no rows") || strings.Contains(errMsg, "not found") {
		return NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	}

	return NewAPIError("INTERNAL_ERROR", "An unexpected error occurred", http.StatusInternalServerError)
}
