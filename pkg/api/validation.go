package api

import (
	"fmt"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxSelectionSize int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxSelectionSize: 64 * 1024,
	}
}

// ValidateRequest checks an inbound Request for validity. It returns an
// *APIError describing the first validation failure, or nil if the request
// is valid.
func ValidateRequest(req *Request, cfg ValidationConfig) *APIError {
	switch req.Action {
	case ActionGenerate, ActionBatchGenerate:
	case "":
		return NewInvalidRequestError("action", "action is required")
	default:
		return NewInvalidRequestError("action",
			fmt.Sprintf("unknown action %q", req.Action))
	}

	if req.Payload.Selection == "" {
		return NewInvalidRequestError("payload.selection", "selection is required")
	}

	if !utf8.ValidString(req.Payload.Selection) {
		return NewInvalidRequestError("payload.selection", "selection must be valid UTF-8")
	}

	if cfg.MaxSelectionSize > 0 && len(req.Payload.Selection) > cfg.MaxSelectionSize {
		return NewInvalidRequestError("payload.selection",
			fmt.Sprintf("selection exceeds maximum size of %d bytes", cfg.MaxSelectionSize))
	}

	return nil
}
