package near

import (
	"cmp"
	"math"
	"slices"
)

// ID is the caller-assigned identifier of a record.
// IDs are ordered numerically; that order breaks distance ties.
type ID uint64

// Record is a vector with its identifier and an optional opaque metadata blob.
type Record struct {
	ID       ID
	Vector   []float32
	Metadata []byte
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{
		ID:       r.ID,
		Vector:   slices.Clone(r.Vector),
		Metadata: slices.Clone(r.Metadata),
	}
}

// Result is a single search hit.
type Result struct {
	// ID is the identifier of the matched record.
	ID ID

	// Distance is the distance between the query and the matched vector
	// under the index's metric. Lower is closer.
	Distance float64
}

// CompareResults orders results by ascending distance, then ascending id.
// NaN distances order last.
func CompareResults(a, b Result) int {
	if an, bn := math.IsNaN(a.Distance), math.IsNaN(b.Distance); an != bn {
		if an {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortResults sorts results in place by CompareResults.
func SortResults(results []Result) {
	slices.SortFunc(results, CompareResults)
}
