package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAborted marks a load superseded by a newer one. It is never shown to users.
var ErrAborted = errors.New("request superseded by a newer load")

type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "invalid report"
	}
	return strings.Join(parts, "; ")
}

// ConstraintViolationError is a uniqueness violation reported by the backend.
type ConstraintViolationError struct {
	Constraint string
	Detail     string
}

func (e *ConstraintViolationError) Error() string {
	if e.Constraint == "" {
		return "constraint violation"
	}
	return "constraint violation: " + e.Constraint
}

// PersistenceError wraps any other storage failure together with the
// operation that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsAborted reports whether err is the expected outcome of a superseded request.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

// Describe returns the short user-facing message and the technical detail for err.
func Describe(err error) (message, detail string) {
	if err == nil {
		return "", ""
	}
	var verr *ValidationError
	var cerr *ConstraintViolationError
	switch {
	case errors.As(err, &verr):
		return "The report is missing required information.", verr.Error()
	case errors.As(err, &cerr):
		detail = cerr.Detail
		if detail == "" {
			detail = cerr.Error()
		}
		return "This entry has already been recorded and cannot be registered twice.", detail
	case IsAborted(err):
		return "", err.Error()
	}
	return "Could not reach the report archive.", err.Error()
}
