// Package neartest provides test helpers for near indexes and backends.
//
// This package is intended for use in tests and benchmarks only.
//
// # Conformance
//
// Every index variant runs the same behavioral suite:
//
//	func TestConformance(t *testing.T) {
//	    neartest.RunConformance(t, flat.Factory())
//	}
//
// Every storage backend runs the backend suite:
//
//	neartest.RunBackend(t, func(t *testing.T) near.Backend { return memory.New() })
//
// # Recall
//
//	recall, err := neartest.MeasureRecall(ctx, approx, oracle, queries, 10)
//
// # Random Vectors
//
//	rng := neartest.NewRNG(seed)
//	data := rng.UniformVectors(1000, 128)
//
// FaultyBackend injects storage failures for error-path tests.
package neartest
