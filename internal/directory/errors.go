// Package directory implements the organization directory service: the
// publish lifecycle state machine, the faceted aggregation engine and the
// validation rules enforced on every write.
package directory

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification surfaced to API clients
// so they can branch on failures rather than parse messages.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation_error"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindAuth             ErrorKind = "auth_error"
	KindForbidden        ErrorKind = "forbidden"
	KindPublishedBlocked ErrorKind = "published_blocked"
	KindInternal         ErrorKind = "internal_error"
)

// Error is a classified service error.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewValidation returns a validation_error.
func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound returns a not_found error.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict returns a conflict error.
func NewConflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewPublishedBlocked signals that a delete was refused because the record
// was PUBLISHED; the record has been archived instead.
func NewPublishedBlocked(id string) *Error {
	return &Error{
		Kind:    KindPublishedBlocked,
		Message: fmt.Sprintf("organization %q is published and cannot be deleted without force; it has been archived instead", id),
	}
}

// KindOf extracts the classification of err, or internal_error for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
