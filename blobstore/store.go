package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned by Get when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of immutable blobs.
type Store interface {
	// Put writes data under name, replacing any existing blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the blob's bytes, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)
}
