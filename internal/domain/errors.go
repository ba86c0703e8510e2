// Package domain defines core types, interfaces, and errors for the data-product catalog.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a referenced entity or an expected part does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input. It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IntegrityError indicates a uniqueness violation outside the idempotent-upsert path.
type IntegrityError struct {
	Message string
}

func (e *IntegrityError) Error() string { return e.Message }

// ConfigurationError indicates a programming or configuration mistake, such as
// a write attempted through a read-only handle. It is not retryable.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// IncompleteDataError signals that a part exists but is not yet valid.
// Callers reschedule on it; it is not a failure.
type IncompleteDataError struct {
	ObservationKey string
	Part           int
	Reason         string
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("observation %s part %d not ready: %s", e.ObservationKey, e.Part, e.Reason)
}

// TransportError indicates the telemetry source could not be reached within
// the allowed attempts or deadline.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrIntegrity creates an IntegrityError with a formatted message.
func ErrIntegrity(format string, args ...interface{}) *IntegrityError {
	return &IntegrityError{Message: fmt.Sprintf(format, args...)}
}

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ErrReadOnly reports a mutation attempted through a read-only catalog handle.
func ErrReadOnly(op string) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf("%s: catalog opened read-only", op)}
}

// IsRetryable reports whether err is a transient condition the caller should
// retry later rather than treat as a failure.
func IsRetryable(err error) bool {
	var incomplete *IncompleteDataError
	var transport *TransportError
	return errors.As(err, &incomplete) || errors.As(err, &transport)
}
