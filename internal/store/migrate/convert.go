package migrate

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pgvector/pgvector-go"
)

// convertTimestamps returns a converter that reparses the RFC3339Nano
// text SQLite stores at the given column indices into time.Time (or
// nil for empty/NULL), which lib/pq encodes as a native TIMESTAMPTZ.
func convertTimestamps(indices ...int) func([]any) []any {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return func(vals []any) []any {
		for i := range vals {
			if !set[i] {
				continue
			}
			vals[i] = parseTimestampArg(vals[i])
		}
		return vals
	}
}

func parseTimestampArg(v any) any {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return v
	}
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return t
}

// convertVector returns a converter that decodes the little-endian
// float32 BLOB SQLite stores at the given column index into a
// pgvector.Vector, mirroring the encoding in store/sqlite/vector.go.
func convertVector(index int) func([]any) []any {
	return func(vals []any) []any {
		blob, ok := vals[index].([]byte)
		if !ok || len(blob) == 0 {
			return vals
		}
		floats := make([]float32, len(blob)/4)
		for i := range floats {
			bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
			floats[i] = math.Float32frombits(bits)
		}
		v := pgvector.NewVector(floats)
		vals[index] = v
		return vals
	}
}
