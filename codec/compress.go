package codec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/near"
)

// Compression selects the block compression of a Compressed codec.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("codec: unknown compression %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// blockHeaderSize covers [uncompressed u32][compressed u32].
// A compressed size of 0 marks a block stored as is.
const blockHeaderSize = 8

// Compressed wraps a codec and compresses its output. Records that don't
// shrink by at least 10% are stored uncompressed behind the same header.
type Compressed struct {
	inner       Codec
	compression Compression
}

// NewCompressed wraps inner with the given compression.
func NewCompressed(inner Codec, c Compression) *Compressed {
	return &Compressed{inner: inner, compression: c}
}

// Name returns the inner name with a compression suffix, e.g. "binary+zstd".
func (c *Compressed) Name() string {
	if c.compression == CompressionNone {
		return c.inner.Name()
	}
	return c.inner.Name() + "+" + c.compression.String()
}

// Encode encodes rec with the inner codec and compresses the result.
func (c *Compressed) Encode(rec near.Record) ([]byte, error) {
	raw, err := c.inner.Encode(rec)
	if err != nil {
		return nil, err
	}
	if c.compression == CompressionNone {
		return raw, nil
	}

	var packed []byte
	switch c.compression {
	case CompressionLZ4:
		packed, err = compressLZ4(raw)
	case CompressionZstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("codec: unknown compression %v", c.compression)
	}
	if err != nil {
		return nil, err
	}

	if len(packed) == 0 || float64(len(packed)) > float64(len(raw))*0.9 {
		out := make([]byte, blockHeaderSize+len(raw))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], raw)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(packed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	copy(out[blockHeaderSize:], packed)
	return out, nil
}

// Decode decompresses data and decodes it with the inner codec.
func (c *Compressed) Decode(data []byte) (near.Record, error) {
	if c.compression == CompressionNone {
		return c.inner.Decode(data)
	}
	raw, err := c.decompress(data)
	if err != nil {
		return near.Record{}, err
	}
	return c.inner.Decode(raw)
}

func (c *Compressed) decompress(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}

	size := binary.LittleEndian.Uint32(data[0:])
	packedSize := binary.LittleEndian.Uint32(data[4:])
	body := data[blockHeaderSize:]

	if packedSize == 0 {
		if uint32(len(body)) != size {
			return nil, fmt.Errorf("%w: stored block size mismatch", ErrCorrupt)
		}
		return body, nil
	}
	if uint32(len(body)) != packedSize {
		return nil, fmt.Errorf("%w: compressed block size mismatch", ErrCorrupt)
	}

	out := make([]byte, size)
	switch c.compression {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return decoded, nil

	default:
		return nil, fmt.Errorf("codec: unknown compression %v", c.compression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible
		return nil, nil
	}
	return dst[:n], nil
}
