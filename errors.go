package near

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrDuplicateID is returned by Insert when the id is already present.
	// Callers wanting upsert semantics must Delete first.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned by Delete when the id is absent.
	ErrNotFound = errors.New("not found")

	// ErrNonFiniteVector is returned when a vector or query has a NaN or
	// infinite component.
	ErrNonFiniteVector = errors.New("non-finite vector component")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrStorageUnavailable is matched by every *StorageError.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidDimension is returned when a space is configured with a non-positive dimension.
	ErrInvalidDimension = errors.New("invalid dimension")

	// ErrInvalidMetric is returned for unsupported metrics.
	ErrInvalidMetric = errors.New("invalid metric")

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = errors.New("index closed")

	// ErrUnknownIndex is returned when an index name is not registered.
	ErrUnknownIndex = errors.New("unknown index")
)

// DimensionMismatchError indicates a vector/query dimensionality mismatch.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// StorageError wraps a failure reported by a Backend.
//
// The original backend error can be accessed via errors.Unwrap; the error
// also matches ErrStorageUnavailable.
type StorageError struct {
	Op  string
	ID  ID
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %d: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// WrapStorage wraps a non-nil backend error in a *StorageError.
// Errors that already are storage errors are returned unchanged.
func WrapStorage(op string, id ID, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, ID: id, Err: err}
}

// IsExpected reports whether err is a caller-actionable condition
// (duplicate or missing id) rather than a fault.
func IsExpected(err error) bool {
	return errors.Is(err, ErrDuplicateID) || errors.Is(err, ErrNotFound)
}
