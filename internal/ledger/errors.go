package ledger

import (
	"fmt"
	"time"
)

// APIError is any failure talking to the budgeting service. StatusCode is
// zero when no response was received.
type APIError struct {
	StatusCode int
	Message    string
	Body       map[string]any
}

func (e *APIError) Error() string {
	return e.Message
}

// AuthError is returned for 401 responses.
type AuthError struct{ APIError }

func (e *AuthError) Unwrap() error { return &e.APIError }

// NotFoundError is returned for 404 responses.
type NotFoundError struct{ APIError }

func (e *NotFoundError) Unwrap() error { return &e.APIError }

// RateLimitError is returned for 429 responses once retries are exhausted.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Unwrap() error { return &e.APIError }

// ValidationError is returned for 400 responses and for updates rejected
// locally before any request is made.
type ValidationError struct {
	APIError
	Detail string
}

func (e *ValidationError) Unwrap() error { return &e.APIError }

func newValidationError(status int, detail string, body map[string]any) *ValidationError {
	return &ValidationError{
		APIError: APIError{StatusCode: status, Message: fmt.Sprintf("Validation error: %s", detail), Body: body},
		Detail:   detail,
	}
}
