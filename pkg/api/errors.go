package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeConfig          ErrorType = "config_error"
	ErrorTypeHTTP            ErrorType = "http_error"
	ErrorTypeParse           ErrorType = "parse_error"
	ErrorTypeTimeout         ErrorType = "timeout_error"
	ErrorTypeAbort           ErrorType = "abort_error"
	ErrorTypeConnection      ErrorType = "connection_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// APIError represents a structured error with type, optional upstream
// status, optional param, and a human-readable message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Status  int       `json:"status,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewConfigError creates an APIError for a missing or invalid provider
// credential. Config errors are fatal to the request and never retried.
func NewConfigError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeConfig,
		Message: message,
	}
}

// NewHTTPError creates an APIError for a non-2xx upstream response.
func NewHTTPError(status int, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeHTTP,
		Status:  status,
		Message: message,
	}
}

// NewParseError creates an APIError for a malformed stream frame.
func NewParseError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeParse,
		Message: message,
	}
}

// NewTimeoutError creates an APIError for a stream that did not terminate
// within its budget.
func NewTimeoutError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTimeout,
		Message: message,
	}
}

// NewAbortError creates an APIError for a request cancelled as a side
// effect of a timeout or disconnect. It is never shown to callers.
func NewAbortError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeAbort,
		Message: message,
	}
}

// NewConnectionError creates an APIError for a channel that could not be
// established or written to.
func NewConnectionError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeConnection,
		Message: message,
	}
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// IsType reports whether err is an *APIError of the given type.
func IsType(err error, t ErrorType) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == t
}

// IsAbort reports whether err is an abort side effect that must be suppressed.
func IsAbort(err error) bool {
	return IsType(err, ErrorTypeAbort)
}
