package near

import (
	"context"
	"iter"
)

// Backend is the keyed store of records an index is bound to.
//
// The backend is the single source of truth for vectors and metadata; indexes
// only mirror the vectors they need for scanning. Implementations must be safe
// for concurrent use and do their own locking.
type Backend interface {
	// Get returns the record stored under id. The boolean is false if absent.
	Get(ctx context.Context, id ID) (Record, bool, error)

	// Put stores rec, replacing any record with the same id.
	Put(ctx context.Context, rec Record) error

	// Remove deletes the record stored under id. Removing a missing id is not an error.
	Remove(ctx context.Context, id ID) error

	// Scan iterates over all stored records. Every call starts a new, finite pass.
	Scan(ctx context.Context) iter.Seq2[Record, error]
}

// Collect drains a backend scan into a slice.
func Collect(ctx context.Context, b Backend) ([]Record, error) {
	var out []Record
	for rec, err := range b.Scan(ctx) {
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			return nil, WrapStorage("scan", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
