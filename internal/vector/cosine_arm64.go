//go:build arm64
// +build arm64

package vector

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitudes dispatches to the NEON/SVE kernels.
func cosineDistanceWithMagnitudes(a, b []float32, ma, mb float32) float32 {
	return search.Float32s(a).CosineDistanceWithMagnitude(b, ma, mb)
}
