package store

import (
	"errors"

	"github.com/lib/pq"

	"shipyard_report/report"
)

const uniqueViolation = "23505"

// classify maps a driver error to the report error taxonomy. Context
// cancellation stays reachable through errors.Is on the result.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &report.ConstraintViolationError{Constraint: pqErr.Constraint, Detail: pqErr.Detail}
	}
	return &report.PersistenceError{Op: op, Err: err}
}
