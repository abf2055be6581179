// Package near provides a pluggable nearest-neighbor search abstraction.
//
// The Index interface is the stable capability every index variant implements.
// Variants trade exactness for speed and are interchangeable without touching
// call sites; storage backends trade persistence for throughput and are bound
// to an index through the Backend interface.
//
// # Quick Start
//
//	ctx := context.Background()
//	space, _ := near.NewSpace(128, near.MetricEuclidean)
//	idx, _ := flat.New(ctx, space, memory.New())
//
//	_ = idx.Insert(ctx, 1, vec, nil)
//	results, _ := idx.Search(ctx, query, 10)
//	for _, r := range results {
//	    fmt.Println(r.ID, r.Distance)
//	}
//
// # Index Variants
//
//   - flat: exact brute-force search. The correctness oracle.
//   - hnsw: hierarchical navigable small world graph. Approximate; publishes
//     its recall bound through the Approximate interface.
//
// Variants are enumerable by name through package registry.
//
// # Storage Backends
//
//   - storage/memory: volatile map
//   - storage/bolt, storage/badger, storage/sqlite: durable local stores
//   - storage/blob: records as objects in a blobstore (local, S3, MinIO)
//   - storage/dynamodb: AWS DynamoDB table
//
// # Errors
//
// All failures are returned as errors comparable with errors.Is against
// ErrDimensionMismatch, ErrDuplicateID, ErrNotFound, ErrInvalidK and
// ErrStorageUnavailable. A failed mutation leaves the index unchanged.
package near
