package codec

import (
	"testing"

	"github.com/hupe1980/near"
)

func benchRecord() near.Record {
	vec := make([]float32, 384)
	for i := range vec {
		vec[i] = float32(i) / 384
	}
	return near.Record{
		ID:       123456,
		Vector:   vec,
		Metadata: []byte(`{"title":"a reasonably sized metadata payload","tags":["x","y","z"],"score":0.75}`),
	}
}

func benchmarkEncode(b *testing.B, c Codec) {
	b.Helper()
	rec := benchRecord()
	b.ReportAllocs()

	warm := MustEncode(c, rec)
	b.SetBytes(int64(len(warm)))

	for b.Loop() {
		if _, err := c.Encode(rec); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkDecode(b *testing.B, c Codec) {
	b.Helper()
	data := MustEncode(c, benchRecord())
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	for b.Loop() {
		if _, err := c.Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	for _, c := range allCodecs() {
		b.Run(c.Name(), func(b *testing.B) { benchmarkEncode(b, c) })
	}
}

func BenchmarkDecode(b *testing.B) {
	for _, c := range allCodecs() {
		b.Run(c.Name(), func(b *testing.B) { benchmarkDecode(b, c) })
	}
}
