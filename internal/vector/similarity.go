package vector

import (
	"github.com/viant/vec/search"
)

// Magnitude returns the L2 magnitude of a vector.
func Magnitude(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return search.Float32s(v).Magnitude()
}

// Cosine returns the cosine similarity between a and b in [-1, 1].
// A dimension mismatch is an error; if either vector has zero norm the
// similarity is 0 by definition.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	if len(a) == 0 {
		return 0, nil
	}
	ma := search.Float32s(a).Magnitude()
	mb := search.Float32s(b).Magnitude()
	return cosineWithMagnitudes(a, b, ma, mb), nil
}

// cosineWithMagnitudes computes cosine similarity reusing precomputed
// magnitudes. Zero-norm operands yield 0.
func cosineWithMagnitudes(a, b []float32, ma, mb float32) float64 {
	if ma == 0 || mb == 0 {
		return 0
	}
	sim := float64(1 - cosineDistanceWithMagnitudes(a, b, ma, mb))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}
