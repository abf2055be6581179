package config

import (
	"context"
	"fmt"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/blobstore"
	"github.com/hupe1980/near/blobstore/minio"
	"github.com/hupe1980/near/blobstore/s3"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/index/hnsw"
	"github.com/hupe1980/near/registry"
	"github.com/hupe1980/near/storage/badger"
	"github.com/hupe1980/near/storage/blob"
	"github.com/hupe1980/near/storage/bolt"
	"github.com/hupe1980/near/storage/dynamodb"
	"github.com/hupe1980/near/storage/memory"
	"github.com/hupe1980/near/storage/sqlite"
)

// Backend is an opened record backend together with its release function.
type Backend struct {
	near.Backend
	close func() error
}

// Close releases the backend. It is safe to call on backends without resources.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func noClose() error { return nil }

// OpenBackend opens the configured record backend.
func OpenBackend(ctx context.Context, cfg Config, logger *near.Logger) (*Backend, error) {
	c, ok := codec.ByName(cfg.Storage.Codec)
	if !ok {
		return nil, fmt.Errorf("config: unknown codec %q", cfg.Storage.Codec)
	}
	if logger == nil {
		logger = near.NoopLogger()
	}

	s := cfg.Storage
	switch s.Kind {
	case StorageMemory:
		return &Backend{Backend: memory.New(), close: noClose}, nil

	case StorageBolt:
		st, err := bolt.Open(s.Path, bolt.WithCodec(c))
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: st, close: st.Close}, nil

	case StorageBadger:
		opts := []badger.Option{badger.WithCodec(c), badger.WithLogger(logger.Logger)}
		if s.InMemory {
			opts = append(opts, badger.WithInMemory())
		}
		st, err := badger.Open(s.Path, opts...)
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: st, close: st.Close}, nil

	case StorageSQLite:
		st, err := sqlite.Open(ctx, s.Path, sqlite.WithCodec(c))
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: st, close: st.Close}, nil

	case StorageBlob:
		bs, err := OpenBlobStore(ctx, s.Blob)
		if err != nil {
			return nil, err
		}
		opts := []blob.Option{blob.WithCodec(c)}
		if s.Blob.RateLimit > 0 {
			opts = append(opts, blob.WithRateLimit(s.Blob.RateLimit, max(s.Blob.Burst, 1)))
		}
		st, err := blob.New(bs, opts...)
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: st, close: noClose}, nil

	case StorageDynamoDB:
		d := s.DynamoDB
		opts := []dynamodb.Option{
			dynamodb.WithCodec(c),
			dynamodb.WithRegion(d.Region),
			dynamodb.WithEndpoint(d.Endpoint),
			dynamodb.WithConsistentRead(d.ConsistentRead),
		}
		if d.CreateTable {
			opts = append(opts, dynamodb.WithCreateTable())
		}
		st, err := dynamodb.New(ctx, d.Table, opts...)
		if err != nil {
			return nil, err
		}
		return &Backend{Backend: st, close: noClose}, nil
	}
	return nil, fmt.Errorf("config: unknown storage kind %q", s.Kind)
}

// OpenBlobStore opens the object store behind the blob backend, wrapped in a
// read cache when CacheBytes is positive.
func OpenBlobStore(ctx context.Context, b BlobConfig) (blobstore.Store, error) {
	var (
		store blobstore.Store
		err   error
	)
	switch b.Store {
	case BlobMemory:
		store = blobstore.NewMemoryStore()
	case BlobLocal:
		store = blobstore.NewLocalStore(b.Root)
	case BlobS3:
		store, err = s3.New(ctx, b.Bucket,
			s3.WithPrefix(b.Prefix),
			s3.WithRegion(b.Region),
			s3.WithEndpoint(b.Endpoint),
		)
	case BlobMinIO:
		store, err = minio.Connect(ctx, minio.Config{
			Endpoint:  b.Endpoint,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
			Secure:    b.Secure,
			Region:    b.Region,
			Bucket:    b.Bucket,
			Prefix:    b.Prefix,
		})
	default:
		return nil, fmt.Errorf("config: unknown blob store %q", b.Store)
	}
	if err != nil {
		return nil, err
	}
	if b.CacheBytes > 0 {
		store = blobstore.NewCachingStore(store, b.CacheBytes)
	}
	return store, nil
}

// Registry returns a registry whose factories carry the configured tuning
// and logger.
func (c Config) Registry(logger *near.Logger) *registry.Registry {
	if logger == nil {
		logger = near.NoopLogger()
	}

	hopts := []hnsw.Option{hnsw.WithLogger(logger.Logger)}
	if c.HNSW.M > 0 {
		hopts = append(hopts, hnsw.WithM(c.HNSW.M))
	}
	if c.HNSW.EfConstruction > 0 {
		hopts = append(hopts, hnsw.WithEfConstruction(c.HNSW.EfConstruction))
	}
	if c.HNSW.EfSearch > 0 {
		hopts = append(hopts, hnsw.WithEfSearch(c.HNSW.EfSearch))
	}
	if c.HNSW.Seed != 0 {
		hopts = append(hopts, hnsw.WithSeed(c.HNSW.Seed))
	}
	if c.HNSW.RecallTarget > 0 {
		hopts = append(hopts, hnsw.WithRecallTarget(c.HNSW.RecallTarget))
	}

	r := registry.New()
	r.MustRegister(flat.Name, flat.Factory(flat.WithLogger(logger.Logger)))
	r.MustRegister(hnsw.Name, hnsw.Factory(hopts...))
	return r
}

// OpenIndex opens the configured index over backend and instruments it with
// logger and metrics.
func (c Config) OpenIndex(ctx context.Context, backend near.Backend, logger *near.Logger, metrics near.MetricsCollector) (near.Index, error) {
	space, err := c.Space()
	if err != nil {
		return nil, err
	}
	idx, err := c.Registry(logger).Open(ctx, c.Index, space, backend)
	if err != nil {
		return nil, err
	}
	return near.Instrument(idx, near.WithLogger(logger), near.WithMetrics(metrics)), nil
}
