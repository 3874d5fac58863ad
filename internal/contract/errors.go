package contract

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry lookups and routing.
var (
	// ErrNotFound reports that no contract is registered under a uri.
	ErrNotFound = errors.New("contract not found")
	// ErrNoProviderMatch reports that a Consumer has no compatible Provider.
	ErrNoProviderMatch = errors.New("no provider matches consumer")
	// ErrNoTransform reports that no transform spec exists for a pair and
	// direction and identity mapping does not apply.
	ErrNoTransform = errors.New("no transform registered for pair")
)

// ValidationError reports missing or invalid registration parameters.
// Field names the offending parameter; the server maps this to InvalidParams.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// NewValidationError reports that a required registration field is missing.
func NewValidationError(field string) *ValidationError {
	return &ValidationError{Field: field}
}

// ResourceError reports a failure acquiring or using a resource the broker
// depends on: an unreadable schema file, malformed schema content, a sandbox
// timeout or script fault, or an unreachable Provider endpoint. The server
// maps this to InternalError with Detail carried in data.detail.
type ResourceError struct {
	Message string // stable, taxonomy-facing message (e.g. "Invalid JSON")
	Detail  string // human-readable cause
	Cause   error
}

func (e *ResourceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

func (e *ResourceError) Unwrap() error { return e.Cause }

// NewResourceError creates a ResourceError with a stable message and cause detail.
func NewResourceError(message, detail string) *ResourceError {
	return &ResourceError{Message: message, Detail: detail}
}

// WrapResourceError creates a ResourceError preserving the underlying cause.
func WrapResourceError(message string, cause error) *ResourceError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &ResourceError{Message: message, Detail: detail, Cause: cause}
}
