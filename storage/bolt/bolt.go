// Package bolt provides a durable near.Backend stored in a single bbolt file.
//
// Records live in one bucket keyed by the big-endian id, so Scan yields them
// in ascending id order.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/storage"
)

var _ near.Backend = (*Store)(nil)

var bucketRecords = []byte("records")

// scanBatch is the number of records read per read transaction during Scan.
const scanBatch = 256

// Options configures Open.
type Options struct {
	Codec   codec.Codec
	Timeout time.Duration
	NoSync  bool
}

// Option configures a bolt store.
type Option func(o *Options)

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

// WithNoSync skips fsync after each commit. Only for tests and bulk loads.
func WithNoSync(noSync bool) Option { return func(o *Options) { o.NoSync = noSync } }

// Store is a bbolt-backed backend.
type Store struct {
	db    *bbolt.DB
	codec codec.Codec
}

// Open opens or creates the database file at path.
func Open(path string, optFns ...Option) (*Store, error) {
	opts := Options{
		Codec:   codec.Default,
		Timeout: 5 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		return nil, errors.New("bolt: codec is nil")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.Timeout, NoSync: opts.NoSync})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, codec: opts.Codec}, nil
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return near.Record{}, false, err
	}

	var (
		rec   near.Record
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get(storage.Key(id))
		if data == nil {
			return nil
		}
		found = true
		var err error
		rec, err = storage.Decode(s.codec, id, data)
		return err
	})
	if err != nil {
		return near.Record{}, false, err
	}
	return rec, found, nil
}

// Put stores rec in its own write transaction.
func (s *Store) Put(ctx context.Context, rec near.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put(storage.Key(rec.ID), data)
	})
}

// Remove deletes the record stored under id.
func (s *Store) Remove(ctx context.Context, id near.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete(storage.Key(id))
	})
}

// Scan reads records in batches of short read transactions so a slow
// consumer does not pin a transaction for the whole pass.
func (s *Store) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	return func(yield func(near.Record, error) bool) {
		var after []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(near.Record{}, err)
				return
			}

			batch, next, err := s.readBatch(after)
			if err != nil {
				yield(near.Record{}, err)
				return
			}
			for _, rec := range batch {
				if !yield(rec, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			after = next
		}
	}
}

// readBatch returns up to scanBatch records with keys greater than after.
// next is nil when the bucket is exhausted.
func (s *Store) readBatch(after []byte) (batch []near.Record, next []byte, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()

		var k, v []byte
		if after == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(after)
			if bytes.Equal(k, after) {
				k, v = c.Next()
			}
		}

		for ; k != nil; k, v = c.Next() {
			if len(batch) == scanBatch {
				next = storage.Key(batch[len(batch)-1].ID)
				return nil
			}
			id, err := storage.ParseKey(k)
			if err != nil {
				return err
			}
			rec, err := storage.Decode(s.codec, id, v)
			if err != nil {
				return err
			}
			batch = append(batch, rec)
		}
		return nil
	})
	return batch, next, err
}

// Len returns the number of stored records.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.db.Path() }

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
