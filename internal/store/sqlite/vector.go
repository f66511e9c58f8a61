package sqlite

import (
	"encoding/binary"
	"math"
)

// encodeVector packs a []float32 into a little-endian byte blob; SQLite
// has no native vector type, so embeddings and face vectors round-trip
// through BLOB columns instead of pgvector's typed column.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
