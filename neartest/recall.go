package neartest

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/near"
)

// Recall computes recall@k of approximate against the exact result list.
// k is the length of the exact list.
func Recall(exact, approximate []near.Result) float64 {
	if len(exact) == 0 {
		if len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	truth := make(map[near.ID]struct{}, len(exact))
	for _, r := range exact {
		truth[r.ID] = struct{}{}
	}

	hits := 0
	for _, r := range approximate {
		if _, ok := truth[r.ID]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(exact))
}

// MeasureRecall runs every query against candidate and oracle and returns the
// mean recall@k of candidate.
func MeasureRecall(ctx context.Context, candidate, oracle near.Index, queries [][]float32, k int) (float64, error) {
	if len(queries) == 0 {
		return 0, fmt.Errorf("neartest: no queries")
	}

	var sum float64
	for i, q := range queries {
		exact, err := oracle.Search(ctx, q, k)
		if err != nil {
			return 0, fmt.Errorf("neartest: oracle query %d: %w", i, err)
		}
		approx, err := candidate.Search(ctx, q, k)
		if err != nil {
			return 0, fmt.Errorf("neartest: candidate query %d: %w", i, err)
		}
		sum += Recall(exact, approx)
	}

	return sum / float64(len(queries)), nil
}

// ExactSearch computes the k nearest records by full sort. It is independent
// of any index implementation and serves as ground truth in tests.
func ExactSearch(space near.Space, records []near.Record, query []float32, k int) []near.Result {
	results := make([]near.Result, 0, len(records))
	dist := space.Func()
	for _, rec := range records {
		results = append(results, near.Result{ID: rec.ID, Distance: dist(query, rec.Vector)})
	}
	near.SortResults(results)
	return slices.Clip(results[:min(k, len(results))])
}
