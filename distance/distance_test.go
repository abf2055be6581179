package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Single", []float32{2}, []float32{3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-9)
		})
	}
}

func TestEuclidean(t *testing.T) {
	assert.InDelta(t, 1.0, Euclidean([]float32{0, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, math.Sqrt(200), Euclidean([]float32{0, 0}, []float32{10, 10}), 1e-9)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	t.Run("ZeroNorm", func(t *testing.T) {
		assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 1}))
		assert.Equal(t, 1.0, CosineDistance([]float32{1, 1}, []float32{0, 0}))
	})
}

func TestSymmetry(t *testing.T) {
	a := []float32{0.3, -1.7, 2.25, 9}
	b := []float32{-4, 0.5, 1e-3, 7.5}

	for _, m := range []Metric{MetricEuclidean, MetricCosine, MetricDot} {
		t.Run(m.String(), func(t *testing.T) {
			fn, err := Provider(m)
			require.NoError(t, err)
			assert.Equal(t, fn(a, b), fn(b, a))
		})
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want Metric
	}{
		{"euclidean", MetricEuclidean},
		{"L2", MetricEuclidean},
		{" cosine ", MetricCosine},
		{"ip", MetricDot},
		{"dot", MetricDot},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestProviderUnknown(t *testing.T) {
	_, err := Provider(Metric(42))
	assert.Error(t, err)
	assert.False(t, Metric(42).Valid())
	assert.Equal(t, "unknown(42)", Metric(42).String())
}
