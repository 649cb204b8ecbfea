// Package tensor provides the small float32 tensor types and numeric kernels
// the sequence models in this toolkit are built on: a (batch, length, channels)
// sequence tensor, a dense matrix, and the convolution/normalization/activation
// primitives operating on them.
package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Seq is a batch of equal-length sequences laid out row-major as
// (batch, length, channels), with the channel values of one position stored
// contiguously. Length may vary between batches but not within one.
type Seq struct {
	B, L, C int
	Data    []float32
}

// NewSeq allocates a zeroed sequence tensor. Panics on non-positive
// dimensions: shapes are fixed by the model configuration, so a bad one is a
// programmer bug rather than a runtime condition.
func NewSeq(b, l, c int) *Seq {
	if b <= 0 || l <= 0 || c <= 0 {
		panic(fmt.Sprintf("tensor: invalid seq shape (%d, %d, %d)", b, l, c))
	}
	return &Seq{B: b, L: l, C: c, Data: make([]float32, b*l*c)}
}

// SeqFromSlices builds a sequence tensor from nested slices of shape
// (batch, length, channels). All sequences must share one length and one
// channel count; ragged input is rejected.
func SeqFromSlices(x [][][]float32) (*Seq, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("tensor: empty batch")
	}
	l := len(x[0])
	if l == 0 {
		return nil, fmt.Errorf("tensor: empty sequence at batch index 0")
	}
	c := len(x[0][0])
	if c == 0 {
		return nil, fmt.Errorf("tensor: empty channel vector at batch index 0")
	}
	s := NewSeq(len(x), l, c)
	for b, seq := range x {
		if len(seq) != l {
			return nil, fmt.Errorf("tensor: ragged batch: sequence %d has length %d, want %d", b, len(seq), l)
		}
		for p, pos := range seq {
			if len(pos) != c {
				return nil, fmt.Errorf("tensor: ragged batch: sequence %d position %d has %d channels, want %d", b, p, len(pos), c)
			}
			copy(s.Pos(b, p), pos)
		}
	}
	return s, nil
}

// Pos returns the channel vector at (batch, position) as a mutable view.
func (s *Seq) Pos(b, l int) []float32 {
	off := (b*s.L + l) * s.C
	return s.Data[off : off+s.C]
}

// Clone returns a deep copy.
func (s *Seq) Clone() *Seq {
	out := NewSeq(s.B, s.L, s.C)
	copy(out.Data, s.Data)
	return out
}

// Mat is a dense row-major float32 matrix.
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zeroed matrix. Panics on non-positive dimensions.
func NewMat(r, c int) *Mat {
	if r <= 0 || c <= 0 {
		panic(fmt.Sprintf("tensor: invalid mat shape (%d, %d)", r, c))
	}
	return &Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// Row returns row i as a mutable view.
func (m *Mat) Row(i int) []float32 {
	return m.Data[i*m.C : (i+1)*m.C]
}

// Clone returns a deep copy.
func (m *Mat) Clone() *Mat {
	out := NewMat(m.R, m.C)
	copy(out.Data, m.Data)
	return out
}

// Rows converts the matrix to nested slices, one per row.
func (m *Mat) Rows() [][]float32 {
	out := make([][]float32, m.R)
	for i := range out {
		row := make([]float32, m.C)
		copy(row, m.Row(i))
		out[i] = row
	}
	return out
}

// FillUniform fills data with reproducible values drawn from U(-bound, bound).
func FillUniform(data []float32, bound float64, rng *rand.Rand) {
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}

// FillNormal fills data with reproducible standard-normal values.
func FillNormal(data []float32, rng *rand.Rand) {
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
}

// KaimingBound is the uniform init bound 1/sqrt(fanIn) the reference
// convolution and linear layers use for both weights and biases.
func KaimingBound(fanIn int) float64 {
	return 1.0 / math.Sqrt(float64(fanIn))
}
