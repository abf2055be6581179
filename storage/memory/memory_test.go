package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/neartest"
	"github.com/hupe1980/near/storage/memory"
)

func TestBackend(t *testing.T) {
	neartest.RunBackend(t, func(t *testing.T) near.Backend {
		return memory.New()
	})
}

func TestScanOrder(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for _, id := range []near.ID{5, 1, 3} {
		require.NoError(t, s.Put(ctx, near.Record{ID: id, Vector: []float32{1}}))
	}

	var got []near.ID
	for rec, err := range s.Scan(ctx) {
		require.NoError(t, err)
		got = append(got, rec.ID)
	}
	assert.Equal(t, []near.ID{1, 3, 5}, got)
	assert.Equal(t, 3, s.Len())
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := memory.New()
	assert.ErrorIs(t, s.Put(ctx, near.Record{ID: 1}), context.Canceled)
	assert.Equal(t, 0, s.Len())
}
