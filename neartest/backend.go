package neartest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/near"
)

// RunBackend checks the near.Backend contract. newBackend must return an
// empty backend; cleanup is the caller's business (t.Cleanup, t.TempDir).
func RunBackend(t *testing.T, newBackend func(t *testing.T) near.Backend) {
	t.Helper()

	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		b := newBackend(t)
		rec := near.Record{ID: 42, Vector: []float32{0.5, -1.25, 3}, Metadata: []byte(`{"k":"v"}`)}
		require.NoError(t, b.Put(ctx, rec))

		got, ok, err := b.Get(ctx, 42)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Vector, got.Vector)
		assert.Equal(t, rec.Metadata, got.Metadata)
	})

	t.Run("NilMetadata", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, near.Record{ID: 1, Vector: []float32{1}}))

		got, ok, err := b.Get(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Empty(t, got.Metadata)
	})

	t.Run("GetMissing", func(t *testing.T) {
		b := newBackend(t)
		_, ok, err := b.Get(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, near.Record{ID: 1, Vector: []float32{1, 2}}))
		require.NoError(t, b.Put(ctx, near.Record{ID: 1, Vector: []float32{3, 4}}))

		got, ok, err := b.Get(ctx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, got.Vector)

		records, err := near.Collect(ctx, b)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("CallerOwnsRecords", func(t *testing.T) {
		b := newBackend(t)
		vec := []float32{1, 2}
		require.NoError(t, b.Put(ctx, near.Record{ID: 1, Vector: vec}))
		vec[0] = 99

		got, _, err := b.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, got.Vector)

		got.Vector[1] = 99
		again, _, err := b.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, again.Vector)
	})

	t.Run("Remove", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Put(ctx, near.Record{ID: 1, Vector: []float32{1}}))
		require.NoError(t, b.Remove(ctx, 1))

		_, ok, err := b.Get(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		// Removing a missing id is not an error.
		assert.NoError(t, b.Remove(ctx, 1))
		assert.NoError(t, b.Remove(ctx, 12345))
	})

	t.Run("Scan", func(t *testing.T) {
		b := newBackend(t)
		vectors := NewRNG(1).UniformVectors(25, 4)
		want := map[near.ID][]float32{}
		for i, v := range vectors {
			id := near.ID(i*7 + 3)
			require.NoError(t, b.Put(ctx, near.Record{ID: id, Vector: v}))
			want[id] = v
		}
		require.NoError(t, b.Remove(ctx, 3))
		delete(want, 3)

		// Scans are restartable: two passes see the same records.
		for range 2 {
			got := map[near.ID][]float32{}
			for rec, err := range b.Scan(ctx) {
				require.NoError(t, err)
				got[rec.ID] = rec.Vector
			}
			assert.Equal(t, want, got)
		}
	})

	t.Run("ScanEarlyBreak", func(t *testing.T) {
		b := newBackend(t)
		for i := range 10 {
			require.NoError(t, b.Put(ctx, near.Record{ID: near.ID(i), Vector: []float32{float32(i)}}))
		}

		n := 0
		for _, err := range b.Scan(ctx) {
			require.NoError(t, err)
			n++
			if n == 3 {
				break
			}
		}
		assert.Equal(t, 3, n)

		// The backend stays usable after an abandoned scan.
		require.NoError(t, b.Put(ctx, near.Record{ID: 100, Vector: []float32{1}}))
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		b := newBackend(t)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for i := range 64 {
			g.Go(func() error {
				return b.Put(gctx, near.Record{ID: near.ID(i), Vector: []float32{float32(i), 1}})
			})
		}
		require.NoError(t, g.Wait())

		records, err := near.Collect(ctx, b)
		require.NoError(t, err)
		assert.Len(t, records, 64)
	})
}
