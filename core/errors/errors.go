// Package errors provides standardized error types and helpers for the citelink codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedField indicates a field's embedded citation data could not be parsed
	ErrMalformedField = errors.New("malformed field")
	// ErrUnresolvedReference indicates a citation identity with no matching bibliography anchor
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrAmbiguousReference indicates a collision resolved without an explicit disambiguation suffix
	ErrAmbiguousReference = errors.New("ambiguous reference")
	// ErrAccessorFailure indicates the document handle is unusable
	ErrAccessorFailure = errors.New("accessor failure")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// MalformedFieldError reports a single field whose embedded data is unparsable.
// The field is skipped and the run continues.
type MalformedFieldError struct {
	FieldOrdinal int    // Position of the field in document order (1-based)
	Detail       string // What could not be parsed
	Err          error  // Underlying error, if any
}

func (e *MalformedFieldError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("field %d: malformed citation data: %s", e.FieldOrdinal, e.Detail)
	}
	return fmt.Sprintf("field %d: malformed citation data", e.FieldOrdinal)
}

func (e *MalformedFieldError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedField
}

// UnresolvedReferenceError reports a citation identity token that matched no
// bibliography anchor. The sub-span stays unlinked and the run continues.
type UnresolvedReferenceError struct {
	Token           string // Normalized identity token that failed to resolve
	CitationOrdinal int    // Position of the citation in document order (1-based)
	Err             error  // Underlying error, if any
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("citation %d: no bibliography entry for %q", e.CitationOrdinal, e.Token)
}

func (e *UnresolvedReferenceError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnresolvedReference
}

// AmbiguousReferenceError reports a (surname, year) collision resolved without a
// recoverable disambiguation suffix. The citation resolves to the first match.
type AmbiguousReferenceError struct {
	Token           string // Identity token that was ambiguous
	CitationOrdinal int    // Position of the citation in document order (1-based)
	Resolved        string // Anchor the citation fell back to
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("citation %d: %q is ambiguous, resolved to %s", e.CitationOrdinal, e.Token, e.Resolved)
}

func (e *AmbiguousReferenceError) Unwrap() error {
	return ErrAmbiguousReference
}

// AccessorError reports a failed operation on the document handle. Accessor
// failures are fatal: the run aborts and no output is produced.
type AccessorError struct {
	Operation string // Operation being performed (e.g., "open", "save", "replace")
	Path      string // Document path, if applicable
	Err       error  // Underlying error
}

func (e *AccessorError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("document accessor: failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("document accessor: failed to %s: %v", e.Operation, e.Err)
}

func (e *AccessorError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrAccessorFailure
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "anchor", "entry", "item")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewMalformedField creates a MalformedFieldError
func NewMalformedField(fieldOrdinal int, detail string, err error) *MalformedFieldError {
	return &MalformedFieldError{
		FieldOrdinal: fieldOrdinal,
		Detail:       detail,
		Err:          err,
	}
}

// NewUnresolvedReference creates an UnresolvedReferenceError
func NewUnresolvedReference(token string, citationOrdinal int) *UnresolvedReferenceError {
	return &UnresolvedReferenceError{
		Token:           token,
		CitationOrdinal: citationOrdinal,
	}
}

// NewAmbiguousReference creates an AmbiguousReferenceError
func NewAmbiguousReference(token string, citationOrdinal int, resolved string) *AmbiguousReferenceError {
	return &AmbiguousReferenceError{
		Token:           token,
		CitationOrdinal: citationOrdinal,
		Resolved:        resolved,
	}
}

// NewAccessor creates an AccessorError
func NewAccessor(operation, path string, err error) *AccessorError {
	return &AccessorError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
