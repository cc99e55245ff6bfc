package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// TransientProviderError marks a retryable failure of an external provider
// (embedding API, vector store). Callers retry with backoff up to a cap.
type TransientProviderError struct {
	Op  string
	Err error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("transient provider failure in %s: %v", e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientProviderError.
func IsTransient(err error) bool {
	var t *TransientProviderError
	return errors.As(err, &t)
}

// InputValidationError marks malformed caller input. Not retried.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Field, e.Reason)
}

// InputTooLongError names the index of an embedding input exceeding the
// configured length limit.
type InputTooLongError struct {
	Index  int
	Length int
	Limit  int
}

func (e *InputTooLongError) Error() string {
	return fmt.Sprintf("input %d too long: %d chars exceeds limit %d", e.Index, e.Length, e.Limit)
}

// CapacityExceededError signals a provider or cache at quota. Ingestion
// pauses the affected source and resumes on the next scheduled run.
type CapacityExceededError struct {
	Resource string
	Reason   string
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded on %s: %s", e.Resource, e.Reason)
}

// ConfigurationError fails fast at startup; it is never produced at
// request time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error %q: %s", e.Field, e.Reason)
}
