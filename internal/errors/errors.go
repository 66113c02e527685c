// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Exit codes reported by the CLI
// - Sentinel errors for all error conditions
// - RowError and BulkError for the recoverable ingestion failures
// - Error category checking functions
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Exit codes - returned by cmd/airq
// ============================================================================

const (
	CodeOK             int = 0
	CodeInternal       int = 1
	CodeInvalidRequest int = 2
	CodeSourceIO       int = 3
	CodeUnavailable    int = 4
)

// CodeName returns a human-readable name for an exit code.
func CodeName(code int) string {
	switch code {
	case CodeOK:
		return "OK"
	case CodeInternal:
		return "Internal"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeSourceIO:
		return "SourceIO"
	case CodeUnavailable:
		return "Unavailable"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Row-level (recoverable) errors
	ErrInvalidDate  = errors.New("invalid date")
	ErrMalformedRow = errors.New("malformed row")

	// Query validation errors
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidReducer   = errors.New("invalid reducer")
	ErrInvalidBound     = errors.New("invalid bound")
	ErrInvalidRange     = errors.New("invalid range")
	ErrInvalidQuantile  = errors.New("invalid quantile")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Ingestion errors
	ErrSourceIO          = errors.New("source read failed")
	ErrBatchPersist      = errors.New("batch persist failed")
	ErrUnsupportedSource = errors.New("unsupported source")

	// Store errors
	ErrStoreClosed        = errors.New("store is closed")
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrTimeout            = errors.New("timeout")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
)

// ============================================================================
// Ingestion error types
// ============================================================================

// RowError reports a source row that could not be turned into a reading.
// The row is skipped; ingestion continues.
type RowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %s %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// NewRowError creates a row error for the given field value.
func NewRowError(field, value string, err error) *RowError {
	return &RowError{Field: field, Value: value, Err: err}
}

// BulkError reports a flush where the store rejected part of a batch.
// Inserted records are persisted; the remainder is lost.
type BulkError struct {
	Attempted int
	Inserted  int
	Err       error
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("%v: %d of %d records rejected: %v",
		ErrBatchPersist, e.Rejected(), e.Attempted, e.Err)
}

func (e *BulkError) Unwrap() []error {
	return []error{ErrBatchPersist, e.Err}
}

// Rejected returns the number of records the store did not accept.
func (e *BulkError) Rejected() int {
	return e.Attempted - e.Inserted
}

// NewBulkError creates a bulk error. A nil cause is replaced by ErrDatabase.
func NewBulkError(attempted, inserted int, err error) *BulkError {
	if err == nil {
		err = ErrDatabase
	}
	return &BulkError{Attempted: attempted, Inserted: inserted, Err: err}
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsValidation returns true if err is a query or configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidReducer) ||
		errors.Is(err, ErrInvalidBound) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidQuantile) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsRowError returns true if err describes a skippable source row.
func IsRowError(err error) bool {
	var re *RowError
	return errors.As(err, &re)
}

// IsBulkError returns true if err is a partial batch failure.
func IsBulkError(err error) bool {
	var be *BulkError
	return errors.As(err, &be)
}

// IsRecoverable returns true if ingestion may continue after err.
func IsRecoverable(err error) bool {
	return IsRowError(err) ||
		errors.Is(err, ErrBatchPersist) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrMalformedRow)
}

// ============================================================================
// Error to exit code mapping
// ============================================================================

// ErrorToCode maps an error to the CLI exit code.
func ErrorToCode(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case IsValidation(err), errors.Is(err, ErrUnsupportedSource), errors.Is(err, ErrUnsupportedBackend):
		return CodeInvalidRequest
	case errors.Is(err, ErrSourceIO):
		return CodeSourceIO
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreClosed):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewInvalidParameter creates an error naming the rejected parameter.
func NewInvalidParameter(name string) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, name)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error wrapping the given sentinel.
func NewInvalidValue(sentinel error, field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, sentinel)
}

// NewSourceIO wraps a read failure of the named source.
func NewSourceIO(source string, err error) error {
	return fmt.Errorf("%s: %w: %w", source, ErrSourceIO, err)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
