package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/storage/memory"
)

func TestDefault(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{"flat", "hnsw"}, r.Names())
	assert.True(t, r.Has("hnsw"))
	assert.False(t, r.Has("ivf"))

	ctx := context.Background()
	space := near.MustSpace(2, near.MetricEuclidean)

	for _, name := range r.Names() {
		t.Run(name, func(t *testing.T) {
			idx, err := r.Open(ctx, name, space, memory.New())
			require.NoError(t, err)
			defer idx.Close()

			assert.Equal(t, name, idx.Name())
			require.NoError(t, idx.Insert(ctx, 1, []float32{1, 1}, nil))
			assert.Equal(t, 1, idx.Len())
		})
	}
}

func TestDefaultIsFresh(t *testing.T) {
	a := Default()
	require.NoError(t, a.Register("custom", flat.Factory()))

	b := Default()
	assert.False(t, b.Has("custom"))
}

func TestRegister(t *testing.T) {
	r := New()
	assert.Empty(t, r.Names())

	require.NoError(t, r.Register("exact", flat.Factory()))
	assert.Error(t, r.Register("exact", flat.Factory()))
	assert.Error(t, r.Register("", flat.Factory()))
	assert.Error(t, r.Register("nil", nil))
	assert.Panics(t, func() { r.MustRegister("exact", flat.Factory()) })

	assert.Equal(t, []string{"exact"}, r.Names())
}

func TestOpenUnknown(t *testing.T) {
	r := New()
	_, err := r.Open(context.Background(), "hnsw", near.MustSpace(2, near.MetricEuclidean), memory.New())
	assert.ErrorIs(t, err, near.ErrUnknownIndex)
}
