// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricEuclidean: L2 distance (default)
//   - MetricCosine: cosine distance, 1 - cos(a, b)
//   - MetricDot: negated dot product, so that lower is better
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricCosine)
//	d := fn(a, b)
package distance
