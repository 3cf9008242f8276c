package creative

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// InsufficientDataError means the caller supplied no usable input.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient data: " + e.Reason
}

// OracleUnavailableError wraps a failed or timed-out oracle call.
// Callers may retry with backoff.
type OracleUnavailableError struct {
	Err error
}

func (e *OracleUnavailableError) Error() string {
	return fmt.Sprintf("oracle unavailable: %v", e.Err)
}

func (e *OracleUnavailableError) Unwrap() error { return e.Err }

// OracleContractError means the oracle answered with something that does not
// match the expected guideline shape. Raw holds the unmodified response.
type OracleContractError struct {
	Raw string
	Err error
}

func (e *OracleContractError) Error() string {
	return fmt.Sprintf("oracle contract violated: %v", e.Err)
}

func (e *OracleContractError) Unwrap() error { return e.Err }

// InvalidInputError reports a missing or malformed structural field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RenderError wraps any failure of the rendering surface or the encoder.
// Stage names the step that failed ("launch", "load", "capture", "encode", ...).
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed at %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Retryable reports whether err belongs to a class the caller may retry.
func Retryable(err error) bool {
	var unavailable *OracleUnavailableError
	var render *RenderError
	return errors.As(err, &unavailable) || errors.As(err, &render)
}
