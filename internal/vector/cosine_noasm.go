//go:build !arm64
// +build !arm64

package vector

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitudes calls the scalar fallback, which the
// library exports under the Neon name on non-arm64 targets.
func cosineDistanceWithMagnitudes(a, b []float32, ma, mb float32) float32 {
	return search.Float32s(a).CosineDistanceWithMagnitudesNeon(b, ma, mb)
}
