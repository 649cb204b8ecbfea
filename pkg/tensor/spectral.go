package tensor

import (
	"math"
	"math/rand"
)

// SpectralNorm caps a weight matrix's largest singular value at 1 by
// rescaling it per evaluation, estimating the value with one step of power
// iteration. It decorates any layer whose weight can be viewed as a
// two-dimensional operator (linear maps directly, convolutions flattened to
// (out, in*kernel)), so the same capability serves every layer kind that
// needs a Lipschitz bound.
type SpectralNorm struct {
	Weight *Mat
	U, V   []float32

	eps float32
}

// NewSpectralNorm wraps weight and seeds the power-iteration vectors. One
// iteration runs at construction so an evaluation-mode call before any
// training-mode call still sees a sensible estimate.
func NewSpectralNorm(weight *Mat, rng *rand.Rand) *SpectralNorm {
	s := &SpectralNorm{
		Weight: weight,
		U:      make([]float32, weight.R),
		V:      make([]float32, weight.C),
		eps:    1e-12,
	}
	FillNormal(s.U, rng)
	normalize(s.U, s.eps)
	s.PowerIterate()
	return s
}

// PowerIterate refines the singular-vector estimates by one step:
// v ← normalize(Wᵀu), u ← normalize(Wv). Training-mode evaluations call this
// before scaling; evaluation mode reuses the stored vectors so repeated
// passes stay deterministic.
func (s *SpectralNorm) PowerIterate() {
	w := s.Weight
	for c := 0; c < w.C; c++ {
		var sum float32
		for r := 0; r < w.R; r++ {
			sum += w.Data[r*w.C+c] * s.U[r]
		}
		s.V[c] = sum
	}
	normalize(s.V, s.eps)
	for r := 0; r < w.R; r++ {
		var sum float32
		row := w.Row(r)
		for c, v := range s.V {
			sum += row[c] * v
		}
		s.U[r] = sum
	}
	normalize(s.U, s.eps)
}

// Sigma returns the current largest-singular-value estimate uᵀWv.
func (s *SpectralNorm) Sigma() float32 {
	var sigma float32
	for r := 0; r < s.Weight.R; r++ {
		row := s.Weight.Row(r)
		var rowDot float32
		for c, v := range s.V {
			rowDot += row[c] * v
		}
		sigma += s.U[r] * rowDot
	}
	return sigma
}

// Apply returns the rescaled weight W/σ. When training is set, the stored
// singular-vector estimates are refined first.
func (s *SpectralNorm) Apply(training bool) *Mat {
	if training {
		s.PowerIterate()
	}
	sigma := s.Sigma()
	out := s.Weight.Clone()
	if sigma != 0 {
		inv := 1.0 / sigma
		for i := range out.Data {
			out.Data[i] *= inv
		}
	}
	return out
}

func normalize(x []float32, eps float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	n := float32(math.Sqrt(sum))
	if n < eps {
		n = eps
	}
	inv := 1.0 / n
	for i := range x {
		x[i] *= inv
	}
}
