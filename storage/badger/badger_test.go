package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/index/hnsw"
	"github.com/hupe1980/near/neartest"
)

func openMemory(t *testing.T, optFns ...Option) *Store {
	t.Helper()
	s, err := Open("", append([]Option{WithInMemory()}, optFns...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBackendInMemory(t *testing.T) {
	neartest.RunBackend(t, func(t *testing.T) near.Backend { return openMemory(t) })
}

func TestBackendOnDisk(t *testing.T) {
	neartest.RunBackend(t, func(t *testing.T) near.Backend {
		s, err := Open(t.TempDir(), WithCodec(codec.MsgPack{}))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestPutBatch(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	recs := make([]near.Record, 0, 100)
	for i, v := range neartest.NewRNG(1).UniformVectors(100, 4) {
		recs = append(recs, near.Record{ID: near.ID(i), Vector: v})
	}
	require.NoError(t, s.PutBatch(ctx, recs))

	got, err := near.Collect(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	space := near.MustSpace(4, near.MetricCosine)
	vectors := neartest.NewRNG(2).UnitVectors(50, 4)

	s, err := Open(dir)
	require.NoError(t, err)
	idx, err := hnsw.New(ctx, space, s)
	require.NoError(t, err)
	for i, v := range vectors {
		require.NoError(t, idx.Insert(ctx, near.ID(i), v, nil))
	}
	require.NoError(t, idx.Close())
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	idx, err = hnsw.New(ctx, space, s)
	require.NoError(t, err)
	assert.Equal(t, len(vectors), idx.Len())

	res, err := idx.Search(ctx, vectors[7], 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, near.ID(7), res[0].ID)
}
