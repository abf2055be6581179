// Package blobstoretest provides a behavioral test suite for blobstore.Store
// implementations.
package blobstoretest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/near/blobstore"
)

// Run exercises a Store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) blobstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		data := []byte("hello blob")
		require.NoError(t, s.Put(ctx, "a/b", data))

		got, err := s.Get(ctx, "a/b")
		require.NoError(t, err)
		assert.Equal(t, data, got)

		// Mutating the caller's buffer must not reach the store.
		data[0] = 'X'
		got, err = s.Get(ctx, "a/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello blob"), got)
	})

	t.Run("Empty", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "empty", nil))
		got, err := s.Get(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("one")))
		require.NoError(t, s.Put(ctx, "k", []byte("two")))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "k", []byte("v")))
		require.NoError(t, s.Delete(ctx, "k"))
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "k"))
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		for _, name := range []string{"records/2", "records/1", "other/x", "records/10"} {
			require.NoError(t, s.Put(ctx, name, []byte(name)))
		}

		names, err := s.List(ctx, "records/")
		require.NoError(t, err)
		assert.Equal(t, []string{"records/1", "records/10", "records/2"}, names)

		names, err = s.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, names, 4)

		names, err = s.List(ctx, "none/")
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := newStore(t)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for i := range 32 {
			g.Go(func() error {
				name := fmt.Sprintf("c/%02d", i)
				if err := s.Put(gctx, name, []byte(name)); err != nil {
					return err
				}
				_, err := s.Get(gctx, name)
				return err
			})
		}
		require.NoError(t, g.Wait())

		names, err := s.List(ctx, "c/")
		require.NoError(t, err)
		assert.Len(t, names, 32)
	})
}
