package neartest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/storage/memory"
)

const (
	conformanceDim = 8
	// conformanceSize is small enough that graph indexes explore every node
	// under default tuning, so their results must match exact search.
	conformanceSize = 32
)

// RunConformance checks the behavioral contract of near.Index against
// indexes built by factory. Every subtest uses a fresh in-memory backend.
func RunConformance(t *testing.T, factory near.Factory) {
	t.Helper()

	ctx := context.Background()

	open := func(t *testing.T, space near.Space, backend near.Backend) near.Index {
		t.Helper()
		idx, err := factory(ctx, space, backend)
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		return idx
	}

	euclidean := near.MustSpace(conformanceDim, near.MetricEuclidean)

	t.Run("Identity", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		assert.NotEmpty(t, idx.Name())
		assert.Equal(t, euclidean, idx.Space())
		if a, ok := idx.(near.Approximate); ok {
			assert.GreaterOrEqual(t, a.RecallTarget(), 0.0)
			assert.LessOrEqual(t, a.RecallTarget(), 1.0)
		}
	})

	t.Run("ConcreteScenario", func(t *testing.T) {
		idx := open(t, near.MustSpace(2, near.MetricEuclidean), memory.New())

		require.NoError(t, idx.Insert(ctx, 1, []float32{0, 0}, nil))
		require.NoError(t, idx.Insert(ctx, 2, []float32{1, 0}, nil))
		require.NoError(t, idx.Insert(ctx, 3, []float32{10, 10}, nil))

		res, err := idx.Search(ctx, []float32{0, 0}, 2)
		require.NoError(t, err)
		assert.Equal(t, []near.Result{{ID: 1, Distance: 0}, {ID: 2, Distance: 1}}, res)

		require.NoError(t, idx.Delete(ctx, 1))

		res, err = idx.Search(ctx, []float32{0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, near.Result{ID: 2, Distance: 1}, res[0])
		assert.Equal(t, near.ID(3), res[1].ID)
		assert.InDelta(t, 14.142135623730951, res[1].Distance, 1e-9)
	})

	t.Run("InsertThenSelfQuery", func(t *testing.T) {
		for _, metric := range []near.Metric{near.MetricEuclidean, near.MetricCosine, near.MetricDot} {
			t.Run(metric.String(), func(t *testing.T) {
				space := near.MustSpace(conformanceDim, metric)
				idx := open(t, space, memory.New())
				vectors := NewRNG(1).UniformVectors(conformanceSize, conformanceDim)

				var records []near.Record
				for i, v := range vectors {
					id := near.ID(i + 1)
					require.NoError(t, idx.Insert(ctx, id, v, nil))
					records = append(records, near.Record{ID: id, Vector: v})
					assert.Equal(t, i+1, idx.Len())

					res, err := idx.Search(ctx, v, 1)
					require.NoError(t, err)
					require.Len(t, res, 1)

					if metric.ZeroRespecting() {
						assert.Equal(t, id, res[0].ID)
						assert.InDelta(t, 0, res[0].Distance, 1e-6)
						continue
					}
					// Without zero-respect the nearest record need not be the query itself.
					want := ExactSearch(space, records, v, 1)
					assert.Equal(t, want[0].ID, res[0].ID)
				}
			})
		}
	})

	t.Run("NonFiniteVector", func(t *testing.T) {
		idx := open(t, near.MustSpace(2, near.MetricEuclidean), memory.New())
		nan := float32(math.NaN())

		assert.ErrorIs(t, idx.Insert(ctx, 1, []float32{nan, 0}, nil), near.ErrNonFiniteVector)
		assert.ErrorIs(t, idx.Insert(ctx, 1, []float32{0, float32(math.Inf(-1))}, nil), near.ErrNonFiniteVector)
		require.NoError(t, idx.Insert(ctx, 2, []float32{0, 0}, nil))
		require.NoError(t, idx.Insert(ctx, 3, []float32{5, 5}, nil))
		assert.Equal(t, 2, idx.Len())

		res, err := idx.Search(ctx, []float32{0, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, []near.Result{{ID: 2, Distance: 0}}, res)

		_, err = idx.Search(ctx, []float32{nan, 0}, 1)
		assert.ErrorIs(t, err, near.ErrNonFiniteVector)
	})

	t.Run("Delete", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		vectors := NewRNG(2).UniformVectors(conformanceSize, conformanceDim)
		insertAll(t, idx, vectors)

		deleted := map[near.ID]bool{}
		for i := 0; i < conformanceSize; i += 3 {
			id := near.ID(i + 1)
			require.NoError(t, idx.Delete(ctx, id))
			deleted[id] = true
		}
		assert.Equal(t, conformanceSize-len(deleted), idx.Len())

		for _, q := range vectors {
			res, err := idx.Search(ctx, q, conformanceSize)
			require.NoError(t, err)
			assert.Len(t, res, idx.Len())
			for _, r := range res {
				assert.False(t, deleted[r.ID], "deleted id %d returned", r.ID)
			}
		}

		for id := range deleted {
			err := idx.Delete(ctx, id)
			assert.ErrorIs(t, err, near.ErrNotFound)
		}
		assert.ErrorIs(t, idx.Delete(ctx, 9999), near.ErrNotFound)
	})

	t.Run("ReinsertAfterDelete", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		vectors := NewRNG(3).UniformVectors(4, conformanceDim)
		insertAll(t, idx, vectors)

		require.NoError(t, idx.Delete(ctx, 1))
		require.NoError(t, idx.Insert(ctx, 1, vectors[3], nil))

		res, err := idx.Search(ctx, vectors[3], 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		// Ids 1 and 4 now share a vector; the tie goes to the lower id.
		assert.Equal(t, near.ID(1), res[0].ID)
		assert.Equal(t, near.ID(4), res[1].ID)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		require.NoError(t, idx.Insert(ctx, 1, make([]float32, conformanceDim), nil))

		err := idx.Insert(ctx, 2, make([]float32, conformanceDim-1), nil)
		require.ErrorIs(t, err, near.ErrDimensionMismatch)

		var dm *near.DimensionMismatchError
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, conformanceDim, dm.Expected)
		assert.Equal(t, conformanceDim-1, dm.Actual)
		assert.Equal(t, 1, idx.Len())

		_, err = idx.Search(ctx, make([]float32, conformanceDim+1), 1)
		assert.ErrorIs(t, err, near.ErrDimensionMismatch)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		v := make([]float32, conformanceDim)
		require.NoError(t, idx.Insert(ctx, 7, v, nil))

		err := idx.Insert(ctx, 7, v, nil)
		assert.ErrorIs(t, err, near.ErrDuplicateID)
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("InvalidK", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		q := make([]float32, conformanceDim)
		for _, k := range []int{0, -1} {
			_, err := idx.Search(ctx, q, k)
			assert.ErrorIs(t, err, near.ErrInvalidK)
		}
	})

	t.Run("EmptyIndex", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		res, err := idx.Search(ctx, make([]float32, conformanceDim), 3)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("MoreThanK", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		vectors := NewRNG(4).UniformVectors(20, conformanceDim)
		insertAll(t, idx, vectors)

		// Three exact ties at distance zero.
		tie := vectors[0]
		for _, id := range []near.ID{102, 100, 101} {
			require.NoError(t, idx.Insert(ctx, id, tie, nil))
		}

		res, err := idx.Search(ctx, tie, 5)
		require.NoError(t, err)
		require.Len(t, res, 5)
		AssertOrdered(t, res)

		assert.Equal(t, []near.ID{1, 100, 101, 102}, ids(res[:4]))
	})

	t.Run("FewerThanK", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		vectors := NewRNG(5).UniformVectors(5, conformanceDim)
		insertAll(t, idx, vectors)

		res, err := idx.Search(ctx, vectors[2], 10)
		require.NoError(t, err)
		assert.Len(t, res, idx.Len())
		AssertOrdered(t, res)
	})

	t.Run("MatchesExactSearch", func(t *testing.T) {
		for _, metric := range []near.Metric{near.MetricEuclidean, near.MetricCosine, near.MetricDot} {
			t.Run(metric.String(), func(t *testing.T) {
				space := near.MustSpace(conformanceDim, metric)
				idx := open(t, space, memory.New())

				rng := NewRNG(6)
				vectors := rng.GaussianVectors(conformanceSize, conformanceDim)
				records := insertAll(t, idx, vectors)

				for _, q := range rng.GaussianVectors(10, conformanceDim) {
					res, err := idx.Search(ctx, q, 5)
					require.NoError(t, err)
					assert.Equal(t, ExactSearch(space, records, q, 5), res)
				}
			})
		}
	})

	t.Run("RebuildIdempotent", func(t *testing.T) {
		idx := open(t, euclidean, memory.New())
		rng := NewRNG(7)
		insertAll(t, idx, rng.UniformVectors(conformanceSize, conformanceDim))
		require.NoError(t, idx.Delete(ctx, 3))

		queries := rng.UniformVectors(8, conformanceDim)
		before := searchAll(t, idx, queries, 5)

		require.NoError(t, idx.Rebuild(ctx))
		assert.Equal(t, conformanceSize-1, idx.Len())
		assert.Equal(t, before, searchAll(t, idx, queries, 5))

		require.NoError(t, idx.Rebuild(ctx))
		assert.Equal(t, before, searchAll(t, idx, queries, 5))
	})

	t.Run("RebuildReadsBackend", func(t *testing.T) {
		backend := memory.New()
		idx := open(t, euclidean, backend)
		vectors := NewRNG(8).UniformVectors(3, conformanceDim)
		require.NoError(t, idx.Insert(ctx, 1, vectors[0], nil))

		// Writes that bypass the index become visible on rebuild.
		require.NoError(t, backend.Put(ctx, near.Record{ID: 2, Vector: vectors[1]}))
		assert.Equal(t, 1, idx.Len())

		require.NoError(t, idx.Rebuild(ctx))
		assert.Equal(t, 2, idx.Len())

		res, err := idx.Search(ctx, vectors[1], 1)
		require.NoError(t, err)
		assert.Equal(t, near.ID(2), res[0].ID)
	})

	t.Run("Reload", func(t *testing.T) {
		backend := memory.New()
		first, err := factory(ctx, euclidean, backend)
		require.NoError(t, err)

		rng := NewRNG(9)
		vectors := rng.UniformVectors(conformanceSize, conformanceDim)
		for i, v := range vectors {
			require.NoError(t, first.Insert(ctx, near.ID(i+1), v, []byte(fmt.Sprintf("meta-%d", i+1))))
		}
		queries := rng.UniformVectors(4, conformanceDim)
		before := searchAll(t, first, queries, 5)
		require.NoError(t, first.Close())

		rec, ok, err := backend.Get(ctx, 5)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("meta-5"), rec.Metadata)

		second := open(t, euclidean, backend)
		assert.Equal(t, conformanceSize, second.Len())
		assert.Equal(t, before, searchAll(t, second, queries, 5))
	})

	t.Run("StorageFailure", func(t *testing.T) {
		backend := NewFaultyBackend(memory.New())
		idx := open(t, euclidean, backend)
		vectors := NewRNG(10).UniformVectors(2, conformanceDim)
		require.NoError(t, idx.Insert(ctx, 1, vectors[0], nil))

		backend.FailPut(true)
		err := idx.Insert(ctx, 2, vectors[1], nil)
		require.ErrorIs(t, err, near.ErrStorageUnavailable)
		assert.ErrorIs(t, err, ErrInjected)

		var se *near.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, near.ID(2), se.ID)

		assert.Equal(t, 1, idx.Len())
		res, err := idx.Search(ctx, vectors[1], 2)
		require.NoError(t, err)
		assert.Equal(t, []near.ID{1}, ids(res))

		backend.FailPut(false)
		require.NoError(t, idx.Insert(ctx, 2, vectors[1], nil))

		backend.FailRemove(true)
		err = idx.Delete(ctx, 1)
		assert.ErrorIs(t, err, near.ErrStorageUnavailable)
		assert.Equal(t, 2, idx.Len())
		res, err = idx.Search(ctx, vectors[0], 1)
		require.NoError(t, err)
		assert.Equal(t, near.ID(1), res[0].ID)

		backend.FailScan(true)
		err = idx.Rebuild(ctx)
		assert.ErrorIs(t, err, near.ErrStorageUnavailable)
		assert.Equal(t, 2, idx.Len())

		_, err = factory(ctx, euclidean, backend)
		assert.ErrorIs(t, err, near.ErrStorageUnavailable)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		backend := NewFaultyBackend(memory.New())
		idx := open(t, euclidean, backend)
		v := make([]float32, conformanceDim)
		require.NoError(t, idx.Insert(ctx, 1, v, nil))

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		assert.ErrorIs(t, idx.Insert(cctx, 2, v, nil), context.Canceled)
		assert.ErrorIs(t, idx.Delete(cctx, 1), context.Canceled)
		_, err := idx.Search(cctx, v, 1)
		assert.ErrorIs(t, err, context.Canceled)

		assert.Equal(t, 1, idx.Len())
		assert.Equal(t, int64(1), backend.Puts())
	})

	t.Run("CancelledDuringStorageWrite", func(t *testing.T) {
		backend := NewFaultyBackend(memory.New())
		idx := open(t, euclidean, backend)
		v := make([]float32, conformanceDim)
		require.NoError(t, idx.Insert(ctx, 1, v, nil))

		cancelWhenBlocked := func() context.Context {
			cctx, cancel := context.WithCancel(ctx)
			go func() {
				for backend.Waiting() == 0 {
					time.Sleep(time.Millisecond)
				}
				cancel()
			}()
			return cctx
		}

		release := backend.HoldPuts()
		err := idx.Insert(cancelWhenBlocked(), 2, v, nil)
		release()
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, near.ErrStorageUnavailable)

		_, ok, err := backend.Get(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)

		release = backend.HoldRemoves()
		err = idx.Delete(cancelWhenBlocked(), 1)
		release()
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, near.ErrStorageUnavailable)
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("CloseDuringInsert", func(t *testing.T) {
		backend := NewFaultyBackend(memory.New())
		idx, err := factory(ctx, euclidean, backend)
		require.NoError(t, err)
		vectors := NewRNG(12).UniformVectors(2, conformanceDim)

		release := backend.HoldPuts()
		defer release()

		first := make(chan error, 1)
		go func() { first <- idx.Insert(ctx, 1, vectors[0], nil) }()
		for backend.Waiting() == 0 {
			time.Sleep(time.Millisecond)
		}

		// The second insert queues behind the first, the close behind both.
		second := make(chan error, 1)
		go func() { second <- idx.Insert(ctx, 2, vectors[1], nil) }()
		time.Sleep(20 * time.Millisecond)
		closed := make(chan error, 1)
		go func() { closed <- idx.Close() }()
		time.Sleep(20 * time.Millisecond)

		release()
		require.NoError(t, <-first)
		assert.ErrorIs(t, <-second, near.ErrClosed)
		require.NoError(t, <-closed)

		_, ok, err := backend.Get(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(1), backend.Puts())
	})

	t.Run("Closed", func(t *testing.T) {
		idx, err := factory(ctx, euclidean, memory.New())
		require.NoError(t, err)
		require.NoError(t, idx.Close())

		v := make([]float32, conformanceDim)
		assert.ErrorIs(t, idx.Insert(ctx, 1, v, nil), near.ErrClosed)
		assert.ErrorIs(t, idx.Delete(ctx, 1), near.ErrClosed)
		_, err = idx.Search(ctx, v, 1)
		assert.ErrorIs(t, err, near.ErrClosed)
		assert.ErrorIs(t, idx.Rebuild(ctx), near.ErrClosed)
		assert.NoError(t, idx.Close())
	})

	t.Run("ConcurrentSearchDuringInsert", func(t *testing.T) {
		space := euclidean
		idx := open(t, space, memory.New())

		rng := NewRNG(11)
		const total = 200
		vectors := rng.UniformVectors(total, conformanceDim)
		queries := rng.UniformVectors(16, conformanceDim)
		insertAll(t, idx, vectors[:16])

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for i := 16; i < total; i++ {
				if err := idx.Insert(gctx, near.ID(i+1), vectors[i], nil); err != nil {
					return err
				}
			}
			return nil
		})

		for r := range 4 {
			g.Go(func() error {
				for i := range 50 {
					q := queries[(r+i)%len(queries)]
					res, err := idx.Search(gctx, q, 5)
					if err != nil {
						return err
					}
					if err := checkResults(space, vectors, q, res); err != nil {
						return err
					}
				}
				return nil
			})
		}

		require.NoError(t, g.Wait())
		assert.Equal(t, total, idx.Len())
	})
}

// AssertOrdered asserts that results ascend by distance with ties broken by ascending id.
func AssertOrdered(t *testing.T, results []near.Result) {
	t.Helper()
	for i := 1; i < len(results); i++ {
		assert.Negative(t, near.CompareResults(results[i-1], results[i]),
			"results %d and %d out of order: %v, %v", i-1, i, results[i-1], results[i])
	}
}

// checkResults verifies that every result refers to a fully inserted vector
// and reports the exact distance to it.
func checkResults(space near.Space, vectors [][]float32, q []float32, res []near.Result) error {
	for i, r := range res {
		if r.ID == 0 || int(r.ID) > len(vectors) {
			return fmt.Errorf("unknown id %d", r.ID)
		}
		want, err := space.Distance(q, vectors[r.ID-1])
		if err != nil {
			return err
		}
		if want != r.Distance {
			return fmt.Errorf("id %d: distance %v, want %v", r.ID, r.Distance, want)
		}
		if i > 0 && near.CompareResults(res[i-1], r) >= 0 {
			return errors.New("results out of order")
		}
	}
	return nil
}

// insertAll inserts vectors under ids 1..n and returns the records.
func insertAll(t *testing.T, idx near.Index, vectors [][]float32) []near.Record {
	t.Helper()
	records := make([]near.Record, len(vectors))
	for i, v := range vectors {
		id := near.ID(i + 1)
		require.NoError(t, idx.Insert(context.Background(), id, v, nil))
		records[i] = near.Record{ID: id, Vector: v}
	}
	return records
}

func searchAll(t *testing.T, idx near.Index, queries [][]float32, k int) [][]near.Result {
	t.Helper()
	out := make([][]near.Result, len(queries))
	for i, q := range queries {
		res, err := idx.Search(context.Background(), q, k)
		require.NoError(t, err)
		out[i] = res
	}
	return out
}

func ids(results []near.Result) []near.ID {
	out := make([]near.ID, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
