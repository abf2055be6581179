package near

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// SearchBatch runs one search per query concurrently and returns the results
// in query order. At most parallelism searches run at once; a value <= 0 uses
// GOMAXPROCS. The first failing search cancels the rest and its error is returned.
func SearchBatch(ctx context.Context, idx Index, queries [][]float32, k, parallelism int) ([][]Result, error) {
	if err := ValidateK(k); err != nil {
		return nil, err
	}
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	out := make([][]Result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, q := range queries {
		g.Go(func() error {
			res, err := idx.Search(gctx, q, k)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
