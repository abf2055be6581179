package codec

import (
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/near"
)

// JSON encodes records as JSON objects using github.com/goccy/go-json.
// Metadata is carried as base64. It is the most portable and least compact codec.
type JSON struct{}

// Name returns "json".
func (JSON) Name() string { return "json" }

// Encode marshals rec to JSON.
func (JSON) Encode(rec near.Record) ([]byte, error) {
	return gojson.Marshal(toWire(rec))
}

// Decode unmarshals a JSON record.
func (JSON) Decode(data []byte) (near.Record, error) {
	var w wireRecord
	if err := gojson.Unmarshal(data, &w); err != nil {
		return near.Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return w.record(), nil
}
