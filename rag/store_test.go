package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"parallel scaled", []float32{1, 0}, []float32{5, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineDistance(tc.a, tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCosineDistanceLengthMismatch(t *testing.T) {
	_, err := CosineDistance([]float32{1, 2}, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineDistanceZeroVector(t *testing.T) {
	_, err := CosineDistance([]float32{0, 0, 0}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidVector)

	_, err = CosineDistance([]float32{1, 2, 3}, []float32{0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidVector)
}
