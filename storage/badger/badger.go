// Package badger provides a near.Backend on top of BadgerDB v4.
//
// Keys are "rec/" followed by the big-endian id. The store can run fully
// in memory, which keeps a real LSM engine in tests without touching disk.
package badger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/storage"
)

var _ near.Backend = (*Store)(nil)

var keyPrefix = []byte("rec/")

// Options configures Open.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	Codec  codec.Codec
	Logger *slog.Logger
}

// Option configures a badger store.
type Option func(o *Options)

// WithInMemory runs the store in memory-only mode.
func WithInMemory() Option { return func(o *Options) { o.InMemory = true } }

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }

// WithLogger routes badger's warnings and errors to l.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

// Store is a BadgerDB-backed backend.
type Store struct {
	db    *badger.DB
	codec codec.Codec
}

// Open opens the database in dir. dir is ignored with WithInMemory.
func Open(dir string, optFns ...Option) (*Store, error) {
	opts := Options{Dir: dir, Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger: dir is required for on-disk mode")
	}
	if opts.Codec == nil {
		return nil, errors.New("badger: codec is nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogAdapter{opts.Logger.With("component", "badger")})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, codec: opts.Codec}, nil
}

func key(id near.ID) []byte {
	return storage.AppendKey(append(make([]byte, 0, len(keyPrefix)+storage.KeySize), keyPrefix...), id)
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return near.Record{}, false, err
	}

	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return near.Record{}, false, nil
	}
	if err != nil {
		return near.Record{}, false, err
	}

	rec, err := storage.Decode(s.codec, id, val)
	if err != nil {
		return near.Record{}, false, err
	}
	return rec, true, nil
}

// Put stores rec.
func (s *Store) Put(ctx context.Context, rec near.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.ID), data)
	})
}

// PutBatch stores many records through a write batch.
func (s *Store) PutBatch(ctx context.Context, recs []near.Record) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := s.codec.Encode(rec)
		if err != nil {
			return err
		}
		if err := wb.Set(key(rec.ID), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Remove deletes the record stored under id.
func (s *Store) Remove(ctx context.Context, id near.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Scan iterates over a read snapshot in ascending id order.
func (s *Store) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	return func(yield func(near.Record, error) bool) {
		stopped := false
		err := s.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = keyPrefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				item := it.Item()
				id, err := storage.ParseKey(item.Key()[len(keyPrefix):])
				if err != nil {
					return err
				}
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				rec, err := storage.Decode(s.codec, id, val)
				if err != nil {
					return err
				}
				if !yield(rec, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(near.Record{}, err)
		}
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// slogAdapter forwards badger's printf-style logging to slog, dropping
// debug and info chatter.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...any)   { a.l.Error(fmt.Sprintf(f, v...)) }
func (a slogAdapter) Warningf(f string, v ...any) { a.l.Warn(fmt.Sprintf(f, v...)) }
func (slogAdapter) Infof(string, ...any)          {}
func (slogAdapter) Debugf(string, ...any)         {}
