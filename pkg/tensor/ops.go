package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("tensor: add length mismatch %d vs %d", len(dst), len(src)))
	}
	for i := range dst {
		dst[i] += src[i]
	}
}

// Conv1D convolves x along the length axis. The weight matrix holds one row
// per output channel, each row the flattened (inChannels/groups, kernel)
// filter in that order; bias may be nil. Padding positions contribute zero
// (implicit padding via the bounds check). For stride 1 and padding
// dilation*(kernel-1)/2 with (kernel-1)*dilation even, the output length
// equals the input length.
func Conv1D(x *Seq, weight *Mat, bias []float32, kernel, stride, dilation, groups, padding int) *Seq {
	if x.C%groups != 0 || weight.R%groups != 0 {
		panic(fmt.Sprintf("tensor: conv channels (%d in, %d out) not divisible by %d groups", x.C, weight.R, groups))
	}
	inPerGroup := x.C / groups
	outPerGroup := weight.R / groups
	if weight.C != inPerGroup*kernel {
		panic(fmt.Sprintf("tensor: conv weight row width %d, want %d", weight.C, inPerGroup*kernel))
	}
	if bias != nil && len(bias) != weight.R {
		panic(fmt.Sprintf("tensor: conv bias length %d, want %d", len(bias), weight.R))
	}

	lOut := (x.L+2*padding-dilation*(kernel-1)-1)/stride + 1
	out := NewSeq(x.B, lOut, weight.R)
	for b := 0; b < x.B; b++ {
		for ol := 0; ol < lOut; ol++ {
			dst := out.Pos(b, ol)
			for oc := 0; oc < weight.R; oc++ {
				g := oc / outPerGroup
				w := weight.Row(oc)
				var sum float32
				for k := 0; k < kernel; k++ {
					il := ol*stride - padding + k*dilation
					if il < 0 || il >= x.L {
						continue
					}
					src := x.Pos(b, il)[g*inPerGroup : (g+1)*inPerGroup]
					for ci, v := range src {
						sum += v * w[ci*kernel+k]
					}
				}
				if bias != nil {
					sum += bias[oc]
				}
				dst[oc] = sum
			}
		}
	}
	return out
}

// Linear computes x @ Wᵀ + bias for a batch of row vectors. The weight is
// stored (out, in); bias may be nil.
func Linear(x *Mat, weight *Mat, bias []float32) *Mat {
	if x.C != weight.C {
		panic(fmt.Sprintf("tensor: linear input width %d, weight width %d", x.C, weight.C))
	}
	out := NewMat(x.R, weight.R)
	for r := 0; r < x.R; r++ {
		src := x.Row(r)
		dst := out.Row(r)
		for o := 0; o < weight.R; o++ {
			w := weight.Row(o)
			var sum float32
			for i, v := range src {
				sum += v * w[i]
			}
			if bias != nil {
				sum += bias[o]
			}
			dst[o] = sum
		}
	}
	return out
}

// LayerNorm normalizes every position's channel vector to zero mean and unit
// variance (variance computed over channels, not length or batch), then
// applies the learned scale and shift.
func LayerNorm(x *Seq, gamma, beta []float32, eps float32) *Seq {
	if len(gamma) != x.C || len(beta) != x.C {
		panic(fmt.Sprintf("tensor: layernorm params %d/%d, want %d", len(gamma), len(beta), x.C))
	}
	out := NewSeq(x.B, x.L, x.C)
	for b := 0; b < x.B; b++ {
		for l := 0; l < x.L; l++ {
			normVec(out.Pos(b, l), x.Pos(b, l), gamma, beta, eps)
		}
	}
	return out
}

// LayerNormRows applies the same per-vector normalization to each row of a
// matrix (the pooled representations).
func LayerNormRows(x *Mat, gamma, beta []float32, eps float32) *Mat {
	if len(gamma) != x.C || len(beta) != x.C {
		panic(fmt.Sprintf("tensor: layernorm params %d/%d, want %d", len(gamma), len(beta), x.C))
	}
	out := NewMat(x.R, x.C)
	for r := 0; r < x.R; r++ {
		normVec(out.Row(r), x.Row(r), gamma, beta, eps)
	}
	return out
}

func normVec(dst, src, gamma, beta []float32, eps float32) {
	var mean float32
	for _, v := range src {
		mean += v
	}
	mean /= float32(len(src))
	var variance float32
	for _, v := range src {
		d := v - mean
		variance += d * d
	}
	variance /= float32(len(src))
	inv := float32(1.0 / math.Sqrt(float64(variance+eps)))
	for i, v := range src {
		dst[i] = (v-mean)*inv*gamma[i] + beta[i]
	}
}

// GELU applies the exact (erf form) Gaussian error linear unit element-wise.
func GELU(x *Seq) *Seq {
	out := NewSeq(x.B, x.L, x.C)
	for i, v := range x.Data {
		out.Data[i] = gelu(v)
	}
	return out
}

func gelu(x float32) float32 {
	return float32(0.5 * float64(x) * (1 + math.Erf(float64(x)/math.Sqrt2)))
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Softmax applies the softmax function to x in place.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// MeanPool averages each sequence over its length axis, collapsing
// (batch, length, channels) to (batch, channels).
func MeanPool(x *Seq) *Mat {
	out := NewMat(x.B, x.C)
	inv := 1.0 / float32(x.L)
	for b := 0; b < x.B; b++ {
		dst := out.Row(b)
		for l := 0; l < x.L; l++ {
			src := x.Pos(b, l)
			for c, v := range src {
				dst[c] += v
			}
		}
		for c := range dst {
			dst[c] *= inv
		}
	}
	return out
}

// Dropout zeroes elements with probability p and rescales survivors by
// 1/(1-p), in place. Callers gate it on the training flag; it is never part
// of the evaluation path.
func Dropout(x *Seq, p float32, rng *rand.Rand) {
	if p <= 0 {
		return
	}
	scale := 1.0 / (1.0 - p)
	for i := range x.Data {
		if rng.Float32() < p {
			x.Data[i] = 0
		} else {
			x.Data[i] *= scale
		}
	}
}
