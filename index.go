package near

import "context"

// Index is the nearest-neighbor capability every index variant implements.
//
// Callers depend on this interface only; concrete variants are chosen at
// construction time (see package registry).
//
// Concurrency: searches may run in parallel. Mutations (Insert, Delete,
// Rebuild) are serialized by the index. A mutation is published atomically
// once its backend write succeeded; searches started afterwards observe it and
// no search ever observes a partially applied mutation.
type Index interface {
	// Name returns the registry name of the variant, e.g. "flat".
	Name() string

	// Space returns the space the index was created with.
	Space() Space

	// Insert adds a record. It fails with ErrDimensionMismatch if the vector
	// has the wrong length and ErrDuplicateID if id is already present.
	Insert(ctx context.Context, id ID, vector []float32, metadata []byte) error

	// Delete removes a record. It fails with ErrNotFound if id is absent.
	Delete(ctx context.Context, id ID) error

	// Search returns up to k live records nearest to query, ascending by
	// distance with ties broken by ascending id. It fails with
	// ErrDimensionMismatch or ErrInvalidK.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Len returns the number of live records.
	Len() int

	// Rebuild recomputes all derived state from the backend's live records.
	Rebuild(ctx context.Context) error

	// Close releases the index. The backend is not closed.
	Close() error
}

// Approximate is implemented by index variants that trade exactness for speed.
//
// An approximate index keeps the error taxonomy and ordering rules of Index.
// Its published quality bound is RecallTarget: under default tuning, the
// overlap of its results with an exact index's results at the same query and k
// is expected to be at least this fraction.
type Approximate interface {
	Index

	// RecallTarget returns the documented minimum recall in [0, 1].
	RecallTarget() float64
}

// Factory constructs an index bound to space and backend.
type Factory func(ctx context.Context, space Space, backend Backend) (Index, error)

// ValidateK returns ErrInvalidK if k is not positive.
func ValidateK(k int) error {
	if k <= 0 {
		return ErrInvalidK
	}
	return nil
}
