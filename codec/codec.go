// Package codec serializes records for storage backends.
//
// Codec selection is a breaking-change boundary: bytes written with one codec
// can only be read back with the same codec. Backends that persist records
// take the codec as an option and default to Binary.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/near"
)

// ErrCorrupt is returned when encoded bytes cannot be decoded.
var ErrCorrupt = errors.New("codec: corrupt record")

// Codec encodes and decodes records.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(rec near.Record) ([]byte, error)
	Decode(data []byte) (near.Record, error)
	Name() string
}

// Default is the codec used by backends when none is configured.
var Default Codec = Binary{}

// ByName returns a built-in codec by its stable name. A "+lz4" or "+zstd"
// suffix wraps the base codec in Compressed, e.g. "msgpack+zstd".
func ByName(name string) (Codec, bool) {
	base, suffix, compressed := strings.Cut(name, "+")

	var c Codec
	switch base {
	case "binary":
		c = Binary{}
	case "msgpack":
		c = MsgPack{}
	case "json":
		c = JSON{}
	default:
		return nil, false
	}

	if !compressed {
		return c, true
	}

	comp, err := ParseCompression(suffix)
	if err != nil || comp == CompressionNone {
		return nil, false
	}
	return NewCompressed(c, comp), true
}

// MustEncode is a helper for tests and benchmarks.
func MustEncode(c Codec, rec near.Record) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Encode(rec)
	if err != nil {
		panic(fmt.Errorf("codec %s encode failed: %w", c.Name(), err))
	}
	return b
}
