// Package blob provides a near.Backend that stores each record as one object
// in a blobstore.Store.
//
// Object names are "records/" followed by the zero-padded decimal id, so a
// lexicographic listing is also ascending id order. Requests can be throttled
// with a token-bucket limiter for stores that bill or throttle per call.
package blob

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/blobstore"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/storage"
)

var _ near.Backend = (*Store)(nil)

const prefix = "records/"

// Options configures New.
type Options struct {
	Codec codec.Codec

	// Limiter throttles every store request. Nil means unlimited.
	Limiter *rate.Limiter

	// Concurrency is the number of objects fetched in parallel during Scan.
	Concurrency int

	// PageSize is the number of objects fetched per Scan step.
	PageSize int
}

// Option configures a blob backend.
type Option func(o *Options)

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }

// WithRateLimit allows at most rps requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Options) { o.Limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1)) }
}

// WithConcurrency sets the number of parallel fetches during Scan.
func WithConcurrency(n int) Option { return func(o *Options) { o.Concurrency = n } }

// Store is a blobstore-backed backend.
type Store struct {
	store blobstore.Store
	opts  Options
}

// New creates a backend over store.
func New(store blobstore.Store, optFns ...Option) (*Store, error) {
	if store == nil {
		return nil, errors.New("blob: store is nil")
	}
	opts := Options{
		Codec:       codec.Default,
		Concurrency: 8,
		PageSize:    256,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		return nil, errors.New("blob: codec is nil")
	}
	opts.Concurrency = max(opts.Concurrency, 1)
	opts.PageSize = max(opts.PageSize, 1)

	return &Store{store: store, opts: opts}, nil
}

// Name returns the object name of id.
func Name(id near.ID) string {
	return fmt.Sprintf("%s%020d", prefix, uint64(id))
}

func parseName(name string) (near.ID, error) {
	digits, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, fmt.Errorf("blob: unexpected object %q", name)
	}
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("blob: unexpected object %q: %w", name, err)
	}
	return near.ID(id), nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.opts.Limiter == nil {
		return ctx.Err()
	}
	return s.opts.Limiter.Wait(ctx)
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	if err := s.wait(ctx); err != nil {
		return near.Record{}, false, err
	}
	data, err := s.store.Get(ctx, Name(id))
	if errors.Is(err, blobstore.ErrNotFound) {
		return near.Record{}, false, nil
	}
	if err != nil {
		return near.Record{}, false, err
	}
	rec, err := storage.Decode(s.opts.Codec, id, data)
	if err != nil {
		return near.Record{}, false, err
	}
	return rec, true, nil
}

// Put writes rec as one object.
func (s *Store) Put(ctx context.Context, rec near.Record) error {
	data, err := s.opts.Codec.Encode(rec)
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.store.Put(ctx, Name(rec.ID), data)
}

// Remove deletes the object of id.
func (s *Store) Remove(ctx context.Context, id near.ID) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.store.Delete(ctx, Name(id))
}

// Scan lists the record objects once and fetches them page by page, with up
// to Concurrency requests in flight. Objects deleted after the listing are
// skipped.
func (s *Store) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	return func(yield func(near.Record, error) bool) {
		if err := s.wait(ctx); err != nil {
			yield(near.Record{}, err)
			return
		}
		names, err := s.store.List(ctx, prefix)
		if err != nil {
			yield(near.Record{}, err)
			return
		}

		for start := 0; start < len(names); start += s.opts.PageSize {
			page := names[start:min(start+s.opts.PageSize, len(names))]
			recs, err := s.fetch(ctx, page)
			if err != nil {
				yield(near.Record{}, err)
				return
			}
			for _, rec := range recs {
				if rec == nil {
					continue
				}
				if !yield(*rec, nil) {
					return
				}
			}
		}
	}
}

func (s *Store) fetch(ctx context.Context, names []string) ([]*near.Record, error) {
	recs := make([]*near.Record, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			id, err := parseName(name)
			if err != nil {
				return err
			}
			rec, ok, err := s.Get(gctx, id)
			if err != nil {
				return err
			}
			if ok {
				recs[i] = &rec
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}
