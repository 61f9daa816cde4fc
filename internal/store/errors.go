package store

import (
	"errors"
	"fmt"
)

// PersistenceErrorKind classifies store failures surfaced to users.
type PersistenceErrorKind string

const (
	KindConnectivity PersistenceErrorKind = "connectivity"
	KindConstraint   PersistenceErrorKind = "constraint_violation"
	KindUnknown      PersistenceErrorKind = "unknown"
)

// PersistenceError is returned when a store operation fails and was aborted
// without retaining partial writes.
type PersistenceError struct {
	Op   string
	Kind PersistenceErrorKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err for the named operation.
func NewPersistenceError(op string, kind PersistenceErrorKind, err error) *PersistenceError {
	return &PersistenceError{Op: op, Kind: kind, Err: err}
}

// IsPersistenceError reports whether err is (or wraps) a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
