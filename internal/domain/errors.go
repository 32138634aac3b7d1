package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrMissingAPIKey = errors.New("stability api key not configured")
	ErrTimeout       = errors.New("provider request timed out")
)

// ValidationError reports a client-supplied field that failed validation.
// It always precedes any provider call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError for the named field.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProviderError carries a non-200 response from the generation provider.
// The upstream status code and body are surfaced to the caller verbatim.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}
