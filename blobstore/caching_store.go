package blobstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/near/internal/cache"
)

var _ Store = (*CachingStore)(nil)

// CachingStore wraps a Store and keeps recently read blobs in an LRU.
// Writes and deletes go to the inner store first and then invalidate. A read
// that overlapped any write is not cached.
type CachingStore struct {
	inner Store
	cache *cache.LRU
	gen   atomic.Uint64
	fill  sync.Mutex
}

// NewCachingStore creates a CachingStore holding at most capacity bytes.
func NewCachingStore(inner Store, capacity int64) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: cache.NewLRU(capacity),
	}
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	err := s.inner.Put(ctx, name, data)
	s.invalidate(name)
	return err
}

func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b, ok := s.cache.Get(name); ok {
		return clone(b), nil
	}
	gen := s.gen.Load()
	b, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.fill.Lock()
	if s.gen.Load() == gen {
		s.cache.Set(name, clone(b))
	}
	s.fill.Unlock()
	return b, nil
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	err := s.inner.Delete(ctx, name)
	s.invalidate(name)
	return err
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) invalidate(name string) {
	s.fill.Lock()
	s.gen.Add(1)
	s.cache.Remove(name)
	s.fill.Unlock()
}

// Stats returns cache hits and misses.
func (s *CachingStore) Stats() (hits, misses int64) {
	return s.cache.Stats()
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
