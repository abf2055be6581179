package near

import (
	"fmt"
	"math"

	"github.com/hupe1980/near/distance"
)

// Metric selects the distance function of a Space.
type Metric = distance.Metric

const (
	// MetricEuclidean is the L2 distance.
	MetricEuclidean = distance.MetricEuclidean
	// MetricCosine is the cosine distance, 1 - cos(a, b).
	MetricCosine = distance.MetricCosine
	// MetricDot is the negated dot product; lower means more similar.
	// Unlike the other metrics its distances can be negative, and d(v, v) is
	// -|v|² rather than 0.
	MetricDot = distance.MetricDot
)

// ParseMetric parses a metric name such as "euclidean", "cosine" or "dot".
func ParseMetric(s string) (Metric, error) {
	m, err := distance.ParseMetric(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMetric, s)
	}
	return m, nil
}

// Space fixes the dimensionality and metric of an index.
// It is an immutable value and safe for concurrent use.
type Space struct {
	dim    int
	metric Metric
	fn     distance.Func
}

// NewSpace creates a Space. Changing the metric later requires a new index.
func NewSpace(dim int, metric Metric) (Space, error) {
	if dim <= 0 {
		return Space{}, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return Space{}, fmt.Errorf("%w: %v", ErrInvalidMetric, metric)
	}
	return Space{dim: dim, metric: metric, fn: fn}, nil
}

// MustSpace is like NewSpace but panics on error. Intended for tests and examples.
func MustSpace(dim int, metric Metric) Space {
	s, err := NewSpace(dim, metric)
	if err != nil {
		panic(err)
	}
	return s
}

// Dimension returns D.
func (s Space) Dimension() int { return s.dim }

// Metric returns the metric fixed at construction.
func (s Space) Metric() Metric { return s.metric }

// Check returns a *DimensionMismatchError if len(v) != D and an error
// matching ErrNonFiniteVector if a component is NaN or infinite.
func (s Space) Check(v []float32) error {
	if len(v) != s.dim {
		return &DimensionMismatchError{Expected: s.dim, Actual: len(v)}
	}
	for i, x := range v {
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrNonFiniteVector, i, x)
		}
	}
	return nil
}

// Distance returns the distance between a and b.
func (s Space) Distance(a, b []float32) (float64, error) {
	if err := s.Check(a); err != nil {
		return 0, err
	}
	if err := s.Check(b); err != nil {
		return 0, err
	}
	return s.fn(a, b), nil
}

// Func returns the raw distance kernel. Callers must validate dimensions.
func (s Space) Func() distance.Func { return s.fn }

func (s Space) String() string {
	return fmt.Sprintf("%s/%d", s.metric, s.dim)
}
