// Package storage holds helpers shared by the near.Backend implementations
// in its subpackages.
//
//   - memory: volatile map
//   - bolt: single-file B+tree (bbolt)
//   - badger: LSM tree (badger v4), optionally in-memory
//   - sqlite: SQLite via the pure-Go modernc driver
//   - blob: one object per record in any blobstore.Store
//   - dynamodb: AWS DynamoDB table
//
// Persistent backends encode records with a codec.Codec and key them by the
// big-endian form of the id, so byte order equals id order.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
)

// KeySize is the length of an encoded key.
const KeySize = 8

// Key encodes id as an 8-byte big-endian key.
func Key(id near.ID) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, KeySize), uint64(id))
}

// AppendKey appends the encoded id to dst.
func AppendKey(dst []byte, id near.ID) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(id))
}

// ParseKey decodes an 8-byte big-endian key.
func ParseKey(b []byte) (near.ID, error) {
	if len(b) != KeySize {
		return 0, fmt.Errorf("storage: key length %d, want %d", len(b), KeySize)
	}
	return near.ID(binary.BigEndian.Uint64(b)), nil
}

// Decode decodes payload with c and checks it belongs to id.
func Decode(c codec.Codec, id near.ID, payload []byte) (near.Record, error) {
	rec, err := c.Decode(payload)
	if err != nil {
		return near.Record{}, fmt.Errorf("storage: record %d: %w", id, err)
	}
	if rec.ID != id {
		return near.Record{}, fmt.Errorf("storage: record key %d holds id %d: %w", id, rec.ID, codec.ErrCorrupt)
	}
	return rec, nil
}
