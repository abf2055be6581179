package flat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/neartest"
	"github.com/hupe1980/near/storage/memory"
)

func TestConformance(t *testing.T) {
	neartest.RunConformance(t, Factory())
}

func TestFlat(t *testing.T) {
	ctx := context.Background()
	space := near.MustSpace(3, near.MetricEuclidean)

	t.Run("Search", func(t *testing.T) {
		f, err := New(ctx, space, memory.New())
		require.NoError(t, err)

		require.NoError(t, f.Insert(ctx, 1, []float32{1.0, 2.0, 3.0}, nil))
		require.NoError(t, f.Insert(ctx, 2, []float32{4.0, 5.0, 6.0}, nil))
		require.NoError(t, f.Insert(ctx, 3, []float32{7.0, 8.0, 9.0}, nil))

		res, err := f.Search(ctx, []float32{9.0, 9.0, 9.0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, near.ID(3), res[0].ID)
		assert.Equal(t, near.ID(2), res[1].ID)
	})

	t.Run("SwapRemove", func(t *testing.T) {
		f, err := New(ctx, space, memory.New())
		require.NoError(t, err)

		for i := range 5 {
			require.NoError(t, f.Insert(ctx, near.ID(i+1), []float32{float32(i), 0, 0}, nil))
		}
		require.NoError(t, f.Delete(ctx, 2))
		require.NoError(t, f.Delete(ctx, 5))

		assert.Equal(t, []near.ID{1, 3, 4}, f.IDs())
		assert.True(t, f.Contains(4))
		assert.False(t, f.Contains(2))

		res, err := f.Search(ctx, []float32{3, 0, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []near.Result{{ID: 4, Distance: 0}, {ID: 3, Distance: 1}, {ID: 1, Distance: 3}}, res)
	})

	t.Run("Stats", func(t *testing.T) {
		f, err := New(ctx, space, memory.New())
		require.NoError(t, err)
		require.NoError(t, f.Insert(ctx, 1, []float32{1, 2, 3}, nil))

		stats := f.Stats()
		assert.Equal(t, 1, stats.Live)
		assert.Equal(t, 3, stats.Dimension)
		assert.Equal(t, near.MetricEuclidean, stats.Metric)
	})

	t.Run("CopiesInput", func(t *testing.T) {
		f, err := New(ctx, space, memory.New())
		require.NoError(t, err)

		v := []float32{1, 1, 1}
		require.NoError(t, f.Insert(ctx, 1, v, nil))
		v[0] = 100

		res, err := f.Search(ctx, []float32{1, 1, 1}, 1)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res[0].Distance)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	space := near.MustSpace(2, near.MetricEuclidean)

	t.Run("NilBackend", func(t *testing.T) {
		_, err := New(ctx, space, nil)
		assert.Error(t, err)
	})

	t.Run("ZeroSpace", func(t *testing.T) {
		_, err := New(ctx, near.Space{}, memory.New())
		assert.ErrorIs(t, err, near.ErrInvalidDimension)
	})

	t.Run("WrongDimensionInBackend", func(t *testing.T) {
		backend := memory.New()
		require.NoError(t, backend.Put(ctx, near.Record{ID: 1, Vector: []float32{1, 2, 3}}))

		_, err := New(ctx, space, backend)
		assert.ErrorIs(t, err, near.ErrDimensionMismatch)
	})

	t.Run("LoadsExisting", func(t *testing.T) {
		backend := memory.New()
		require.NoError(t, backend.Put(ctx, near.Record{ID: 9, Vector: []float32{1, 2}}))

		f, err := New(ctx, space, backend, WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, 1, f.Len())
		assert.ErrorIs(t, f.Insert(ctx, 9, []float32{0, 0}, nil), near.ErrDuplicateID)
	})
}

// Exact search does not depend on the order records arrived in.
func TestOrderInvariance(t *testing.T) {
	ctx := context.Background()
	space := near.MustSpace(16, near.MetricEuclidean)

	rng := neartest.NewRNG(42)
	// Coarse values produce distance ties, which must also resolve identically.
	vectors := rng.UniformVectors(300, 16)
	for _, v := range vectors {
		for j := range v {
			v[j] = float32(int(v[j] * 4))
		}
	}
	queries := rng.UniformVectors(20, 16)

	build := func(order []int) *Index {
		f, err := New(ctx, space, memory.New())
		require.NoError(t, err)
		for _, i := range order {
			require.NoError(t, f.Insert(ctx, near.ID(i+1), vectors[i], nil))
		}
		return f
	}

	forward := make([]int, len(vectors))
	reverse := make([]int, len(vectors))
	for i := range vectors {
		forward[i] = i
		reverse[i] = len(vectors) - 1 - i
	}

	a := build(forward)
	b := build(reverse)
	c := build(rng.Perm(len(vectors)))

	records := make([]near.Record, len(vectors))
	for i, v := range vectors {
		records[i] = near.Record{ID: near.ID(i + 1), Vector: v}
	}

	for _, q := range queries {
		want := neartest.ExactSearch(space, records, q, 10)
		for _, f := range []*Index{a, b, c} {
			got, err := f.Search(ctx, q, 10)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}
