package sqlvec

import (
	"encoding/binary"
	"math"
)

// Vectors are stored as little-endian float32 blobs, four bytes per
// component, so the column length encodes the dimension.

func encodeVector(f []float32) []byte {
	buf := make([]byte, len(f)*4)
	for i, v := range f {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	f := make([]float32, len(b)/4)
	for i := range f {
		f[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return f
}
