package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNoAPIKeys     = errors.New("no API keys configured")
	ErrInvalidAPIKey = errors.New("invalid API key")

	ErrApplyInProgress = errors.New("apply already in progress")
)

// Post-condition verification failures. The device accepted the mutating
// call but a follow-up existence check contradicts the desired state.
var (
	ErrCreateNotEffective = errors.New("failed to create the iRule")
	ErrDeleteNotEffective = errors.New("failed to delete the iRule")
)

// APIError represents an error response from the HTTP API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
