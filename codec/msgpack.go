package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hupe1980/near"
)

type wireRecord struct {
	ID       uint64    `msgpack:"id" json:"id"`
	Vector   []float32 `msgpack:"v" json:"vector"`
	Metadata []byte    `msgpack:"m,omitempty" json:"metadata,omitempty"`
}

func toWire(rec near.Record) wireRecord {
	return wireRecord{ID: uint64(rec.ID), Vector: rec.Vector, Metadata: rec.Metadata}
}

func (w wireRecord) record() near.Record {
	return near.Record{ID: near.ID(w.ID), Vector: w.Vector, Metadata: w.Metadata}
}

// MsgPack encodes records with github.com/vmihailenco/msgpack/v5.
type MsgPack struct{}

// Name returns "msgpack".
func (MsgPack) Name() string { return "msgpack" }

// Encode marshals rec to MessagePack.
func (MsgPack) Encode(rec near.Record) ([]byte, error) {
	return msgpack.Marshal(toWire(rec))
}

// Decode unmarshals a MessagePack record.
func (MsgPack) Decode(data []byte) (near.Record, error) {
	var w wireRecord
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return near.Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return w.record(), nil
}
