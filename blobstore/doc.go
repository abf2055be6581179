// Package blobstore stores named byte blobs.
//
// Store is the interface every object store implements. Implementations must
// be safe for concurrent use and write each blob atomically: a reader sees
// either the old or the new bytes, never a torn mix.
//
// # Built-in Implementations
//
//   - MemoryStore: volatile map, for tests and ephemeral setups
//   - LocalStore: files under a root directory, read through mmap
//   - CachingStore: read-through LRU in front of any Store
//   - s3.Store: Amazon S3 via aws-sdk-go-v2
//   - minio.Store: MinIO and other S3-compatible services
//
// Names are slash-separated paths such as "records/00000000000000000042".
package blobstore
