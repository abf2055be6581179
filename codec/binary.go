package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/near"
)

const binaryVersion = 1

// Binary is a compact little-endian layout:
//
//	[version u8][id u64][dim u32][dim x f32][metaLen u32][meta]
type Binary struct{}

// Name returns "binary".
func (Binary) Name() string { return "binary" }

// Encode writes rec in the binary layout.
func (Binary) Encode(rec near.Record) ([]byte, error) {
	if uint64(len(rec.Vector)) > math.MaxUint32 || uint64(len(rec.Metadata)) > math.MaxUint32 {
		return nil, fmt.Errorf("codec: record %d too large", rec.ID)
	}

	buf := make([]byte, 0, 1+8+4+4*len(rec.Vector)+4+len(rec.Metadata))
	buf = append(buf, binaryVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(rec.ID))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.Vector)))
	for _, f := range rec.Vector {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec.Metadata)))
	buf = append(buf, rec.Metadata...)
	return buf, nil
}

// Decode reads a record written by Encode. The result does not alias data.
func (Binary) Decode(data []byte) (near.Record, error) {
	if len(data) < 1+8+4 {
		return near.Record{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if data[0] != binaryVersion {
		return near.Record{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[0])
	}

	rec := near.Record{ID: near.ID(binary.LittleEndian.Uint64(data[1:]))}
	dim := int(binary.LittleEndian.Uint32(data[9:]))
	off := 13

	if len(data)-off < 4*dim+4 {
		return near.Record{}, fmt.Errorf("%w: truncated vector", ErrCorrupt)
	}
	rec.Vector = make([]float32, dim)
	for i := range rec.Vector {
		rec.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		off += 4
	}

	metaLen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if len(data)-off != metaLen {
		return near.Record{}, fmt.Errorf("%w: metadata length %d, have %d bytes", ErrCorrupt, metaLen, len(data)-off)
	}
	if metaLen > 0 {
		rec.Metadata = make([]byte, metaLen)
		copy(rec.Metadata, data[off:])
	}
	return rec, nil
}
