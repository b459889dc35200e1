package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{"empty", []float32{}},
		{"single", []float32{0.5}},
		{"typical", []float32{0.1, -0.2, 0.3, -0.4}},
		{"extremes", []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := Encode(tt.vec)
			assert.Equal(t, len(tt.vec)*4, len(blob))

			decoded, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.vec, decoded)
		})
	}
}

func TestDecode_MalformedBlob(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5, 7} {
		blob := make([]byte, size)
		_, err := Decode(blob)
		require.Error(t, err, "size %d", size)
		assert.ErrorIs(t, err, ErrMalformedBlob)
	}
}

func TestDecode_EmptyBlob(t *testing.T) {
	vec, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, vec)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"zero left", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"zero right", []float32{1, 1}, []float32{0, 0}, 0.0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosineSimilarity_ScaleInvariant(t *testing.T) {
	a := []float32{0.3, -0.7, 0.2}
	scaled := []float32{0.6, -1.4, 0.4}

	assert.InDelta(t, 1.0, CosineSimilarity(a, scaled), 1e-6)
}
