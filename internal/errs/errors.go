// internal/errs/errors.go
//
// Error kinds surfaced by the data-access layer.
//
// Context
// -------
// Every operation in adapter, analytics, and mutation reports failures as
// one of a small set of kinds so callers can branch with errors.Is or
// errors.As instead of matching strings:
//
//   - ErrNotFound                 point lookup or update target is absent.
//   - ErrDuplicate                a uniqueness rule (user email) would break.
//   - *ValidationError            bad input, detected before any write.
//   - *ReferentialIntegrityError  a referenced Site or User does not exist.
//   - *StoreUnavailableError      transport failure or timeout.  Never retried.
//   - *UnclassifiedQueryError     a template matched no known query shape.
//
// Notes
// -----
//   - ErrNotFound is a valid empty result for LookupOne, not a fault.
//   - Oxford commas, two spaces after periods.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a point lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert or update would violate a
	// uniqueness rule.
	ErrDuplicate = errors.New("duplicate record")
)

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

// FieldError names one rejected field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError reports input rejected before it reached the store.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, "; "))
}

// Invalid is shorthand for a single-field ValidationError.
func Invalid(entity, field, reason string) *ValidationError {
	return &ValidationError{Entity: entity, Fields: []FieldError{{Field: field, Reason: reason}}}
}

// -----------------------------------------------------------------------------
// Referential integrity
// -----------------------------------------------------------------------------

// ReferentialIntegrityError reports a reference to a Site or User that could
// not be resolved.
type ReferentialIntegrityError struct {
	Entity string // entity being written, e.g. "video"
	Field  string // referencing field, e.g. "site_id"
	Ref    string // value that did not resolve
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("%s.%s references missing record %q", e.Entity, e.Field, e.Ref)
}

// -----------------------------------------------------------------------------
// Store transport
// -----------------------------------------------------------------------------

// StoreUnavailableError wraps a transport or timeout failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// UnclassifiedQueryError reports a template that maps to no query shape.
type UnclassifiedQueryError struct {
	Template string
}

func (e *UnclassifiedQueryError) Error() string {
	return fmt.Sprintf("unclassified query template: %q", e.Template)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsReferential reports whether err carries a *ReferentialIntegrityError.
func IsReferential(err error) bool {
	var re *ReferentialIntegrityError
	return errors.As(err, &re)
}

// IsUnavailable reports whether err carries a *StoreUnavailableError.
func IsUnavailable(err error) bool {
	var ue *StoreUnavailableError
	return errors.As(err, &ue)
}

// IsUnclassified reports whether err carries an *UnclassifiedQueryError.
func IsUnclassified(err error) bool {
	var uq *UnclassifiedQueryError
	return errors.As(err, &uq)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case IsValidation(err):
		return "validation"
	case IsReferential(err):
		return "referential"
	case IsUnavailable(err):
		return "unavailable"
	case IsUnclassified(err):
		return "unclassified"
	default:
		return "error"
	}
}
