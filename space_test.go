package near

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpace(t *testing.T) {
	s, err := NewSpace(3, MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dimension())
	assert.Equal(t, MetricCosine, s.Metric())
	assert.Contains(t, s.String(), "/3")

	_, err = NewSpace(0, MetricEuclidean)
	assert.ErrorIs(t, err, ErrInvalidDimension)
	_, err = NewSpace(-1, MetricEuclidean)
	assert.ErrorIs(t, err, ErrInvalidDimension)
	_, err = NewSpace(2, Metric(99))
	assert.ErrorIs(t, err, ErrInvalidMetric)

	assert.Panics(t, func() { MustSpace(0, MetricDot) })
}

func TestSpaceCheck(t *testing.T) {
	s := MustSpace(2, MetricEuclidean)
	require.NoError(t, s.Check([]float32{1, 2}))

	err := s.Check([]float32{1})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 1, dm.Actual)

	nan, inf := float32(math.NaN()), float32(math.Inf(1))
	for _, v := range [][]float32{{nan, 0}, {0, inf}, {-inf, 1}} {
		err := s.Check(v)
		assert.ErrorIs(t, err, ErrNonFiniteVector)
		assert.NotErrorIs(t, err, ErrDimensionMismatch)
	}

	_, err = s.Distance([]float32{0, 0}, []float32{nan, 0})
	assert.ErrorIs(t, err, ErrNonFiniteVector)
}

func TestSpaceDistance(t *testing.T) {
	tests := []struct {
		metric Metric
		a, b   []float32
		want   float64
	}{
		{MetricEuclidean, []float32{0, 0}, []float32{3, 4}, 5},
		{MetricCosine, []float32{1, 0}, []float32{0, 1}, 1},
		{MetricCosine, []float32{1, 1}, []float32{2, 2}, 0},
		{MetricDot, []float32{1, 2}, []float32{3, 4}, -11},
	}
	for _, tt := range tests {
		t.Run(tt.metric.String(), func(t *testing.T) {
			s := MustSpace(2, tt.metric)
			got, err := s.Distance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	_, err := MustSpace(2, MetricDot).Distance([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	_, err = ParseMetric("manhattan")
	assert.ErrorIs(t, err, ErrInvalidMetric)
}
