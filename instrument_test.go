package near_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/index/hnsw"
	"github.com/hupe1980/near/neartest"
	"github.com/hupe1980/near/storage/memory"
)

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	space := near.MustSpace(2, near.MetricEuclidean)

	base, err := flat.New(ctx, space, memory.New())
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := near.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &near.BasicMetricsCollector{}

	idx := near.Instrument(base, near.WithLogger(logger), near.WithMetrics(metrics))
	assert.Equal(t, "flat", idx.Name())
	_, ok := idx.(near.Approximate)
	assert.False(t, ok)

	require.NoError(t, idx.Insert(ctx, 1, []float32{0, 0}, nil))
	assert.ErrorIs(t, idx.Insert(ctx, 1, []float32{0, 0}, nil), near.ErrDuplicateID)
	_, err = idx.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	_, err = idx.Search(ctx, []float32{0}, 1)
	assert.ErrorIs(t, err, near.ErrDimensionMismatch)
	require.NoError(t, idx.Delete(ctx, 1))
	require.NoError(t, idx.Rebuild(ctx))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.InsertCount)
	assert.Equal(t, int64(1), stats.InsertErrors)
	assert.Equal(t, int64(2), stats.SearchCount)
	assert.Equal(t, int64(1), stats.SearchErrors)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.RebuildCount)

	out := buf.String()
	assert.Contains(t, out, `"index":"flat"`)
	assert.Contains(t, out, `"dimension":2`)
	assert.Contains(t, out, "insert rejected")
	assert.Contains(t, out, "search failed")
	assert.Contains(t, out, "rebuild completed")
}

func TestInstrumentApproximate(t *testing.T) {
	ctx := context.Background()
	h, err := hnsw.New(ctx, near.MustSpace(2, near.MetricEuclidean), memory.New())
	require.NoError(t, err)

	idx := near.Instrument(h)
	a, ok := idx.(near.Approximate)
	require.True(t, ok)
	assert.Equal(t, h.RecallTarget(), a.RecallTarget())
}

func TestInstrumentConformance(t *testing.T) {
	neartest.RunConformance(t, func(ctx context.Context, space near.Space, backend near.Backend) (near.Index, error) {
		idx, err := flat.New(ctx, space, backend)
		if err != nil {
			return nil, err
		}
		return near.Instrument(idx, near.WithMetrics(&near.BasicMetricsCollector{})), nil
	})
}
