package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptEmbedding is returned when a stored embedding cannot be decoded.
var ErrCorruptEmbedding = errors.New("corrupt embedding blob")

const float64Size = 8

// Pack encodes v as little-endian float64 values for BLOB storage.
func Pack(v []float64) []byte {
	buf := make([]byte, len(v)*float64Size)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*float64Size:], math.Float64bits(f))
	}
	return buf
}

// Unpack decodes a BLOB produced by Pack.
func Unpack(b []byte) ([]float64, error) {
	if len(b)%float64Size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCorruptEmbedding, len(b), float64Size)
	}
	v := make([]float64, len(b)/float64Size)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*float64Size:]))
	}
	return v, nil
}
