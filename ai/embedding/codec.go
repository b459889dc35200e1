package embedding

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// ErrMalformedBlob reports a binary vector whose length is not a multiple
// of the float32 width. It is fatal to the single record involved, never
// to a whole batch.
var ErrMalformedBlob = errors.New("vector blob length is not a multiple of 4")

// Encode serializes a vector as little-endian float32 values,
// dimension * 4 bytes. The round trip through Decode is lossless at
// float32 precision.
func Encode(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Wrapf(ErrMalformedBlob, "got %d bytes", len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|). It returns 0.0 when
// either norm is exactly zero or the lengths differ, keeping the search
// path total.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
