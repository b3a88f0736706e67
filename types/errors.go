package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel backend errors. Backends wrap these with %w so callers can use errors.Is.
var (
	ErrNotFound = errors.New("entity not found")
	ErrInvalid  = errors.New("invalid request")
	ErrCycle    = errors.New("parent change would create a cycle")
	ErrConflict = errors.New("conflicting request")
)

// Error codes used on the wire
const (
	CodeNotFound = "not_found"
	CodeInvalid  = "invalid"
	CodeCycle    = "cycle"
	CodeConflict = "conflict"
	CodeInternal = "internal"
)

// APIError is a structured backend failure carrying a human-readable message
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Is maps wire codes back onto the sentinel errors
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrInvalid:
		return e.Code == CodeInvalid
	case ErrCycle:
		return e.Code == CodeCycle
	case ErrConflict:
		return e.Code == CodeConflict
	}
	return false
}

// Temporary reports whether the failure is worth retrying on idempotent calls
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// NewAPIError converts any error into an APIError with a matching status and code
func NewAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, ErrInvalid):
		return &APIError{Status: http.StatusBadRequest, Code: CodeInvalid, Message: err.Error()}
	case errors.Is(err, ErrCycle):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: CodeCycle, Message: err.Error()}
	case errors.Is(err, ErrConflict):
		return &APIError{Status: http.StatusConflict, Code: CodeConflict, Message: err.Error()}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
	}
}
