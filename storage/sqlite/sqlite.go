// Package sqlite provides a near.Backend stored in a SQLite database using
// the pure-Go modernc.org/sqlite driver.
//
// Records live in a single table:
//
//	CREATE TABLE records (id INTEGER PRIMARY KEY, payload BLOB NOT NULL)
//
// SQLite's INTEGER is signed, so ids are stored with the sign bit flipped;
// the column's signed order then equals the unsigned id order.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/storage"
)

var _ near.Backend = (*Store)(nil)

// scanBatch is the number of rows fetched per query during Scan.
const scanBatch = 256

const signBit = 1 << 63

func rowID(id near.ID) int64 { return int64(uint64(id) ^ signBit) }

func recordID(row int64) near.ID { return near.ID(uint64(row) ^ signBit) }

const schema = `CREATE TABLE IF NOT EXISTS records (
	id      INTEGER PRIMARY KEY,
	payload BLOB NOT NULL
)`

// Options configures Open.
type Options struct {
	Codec codec.Codec
}

// Option configures a sqlite store.
type Option func(o *Options)

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }

// Store is a SQLite-backed backend.
type Store struct {
	db    *sql.DB
	codec codec.Codec
}

// Open opens the database at dsn, e.g. a file path or "file::memory:".
func Open(ctx context.Context, dsn string, optFns ...Option) (*Store, error) {
	opts := Options{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		return nil, errors.New("sqlite: codec is nil")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps in-memory databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", stmt, err)
		}
	}

	return &Store{db: db, codec: opts.Codec}, nil
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE id = ?`, rowID(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return near.Record{}, false, nil
	}
	if err != nil {
		return near.Record{}, false, err
	}

	rec, err := storage.Decode(s.codec, id, payload)
	if err != nil {
		return near.Record{}, false, err
	}
	return rec, true, nil
}

// Put upserts rec.
func (s *Store) Put(ctx context.Context, rec near.Record) error {
	payload, err := s.codec.Encode(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		rowID(rec.ID), payload)
	return err
}

// Remove deletes the record stored under id.
func (s *Store) Remove(ctx context.Context, id near.ID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, rowID(id))
	return err
}

// Scan yields records in ascending id order. Rows are fetched in pages so
// the connection is free between pages and callers may write mid-scan.
func (s *Store) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	return func(yield func(near.Record, error) bool) {
		after := int64(math.MinInt64)
		first := true
		for {
			batch, err := s.readBatch(ctx, after, first)
			if err != nil {
				yield(near.Record{}, err)
				return
			}
			for _, rec := range batch {
				if !yield(rec, nil) {
					return
				}
			}
			if len(batch) < scanBatch {
				return
			}
			after, first = rowID(batch[len(batch)-1].ID), false
		}
	}
}

func (s *Store) readBatch(ctx context.Context, after int64, inclusive bool) ([]near.Record, error) {
	query := `SELECT id, payload FROM records WHERE id > ? ORDER BY id LIMIT ?`
	if inclusive {
		query = `SELECT id, payload FROM records WHERE id >= ? ORDER BY id LIMIT ?`
	}
	rows, err := s.db.QueryContext(ctx, query, after, scanBatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := make([]near.Record, 0, scanBatch)
	for rows.Next() {
		var (
			row     int64
			payload []byte
		)
		if err := rows.Scan(&row, &payload); err != nil {
			return nil, err
		}
		rec, err := storage.Decode(s.codec, recordID(row), payload)
		if err != nil {
			return nil, err
		}
		batch = append(batch, rec)
	}
	return batch, rows.Err()
}

// Len returns the number of stored records.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
