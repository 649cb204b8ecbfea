// Package bytenet implements a dilated residual convolutional encoder for
// biological sequences together with a model head for regression and
// classification. The architecture follows the ByteNet family: a stack of
// pre-activation residual blocks whose convolutions cycle through
// exponentially growing dilations, pooled to a fixed-size representation. The
// output head is either a plain linear map or a last-layer random-feature
// Gaussian process that additionally produces calibrated variance estimates.
package bytenet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

const normEps = 1e-5

// ConvLayer is a 1-D convolution with "same"-length padding derived from the
// kernel size and dilation, so stride-1 output length always matches input
// length.
type ConvLayer struct {
	Weight *tensor.Mat // (out, in/groups * kernel)
	Bias   []float32

	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Dilation    int
	Groups      int

	padding int
	sn      *tensor.SpectralNorm
}

// NewConvLayer constructs a padded convolution. Channel counts must be
// divisible by groups, kernel/stride/dilation must be positive, and
// (kernel-1)*dilation must be even so symmetric padding preserves length.
func NewConvLayer(in, out, kernel, stride, dilation, groups int, withBias, spectralNorm bool, rng *rand.Rand) (*ConvLayer, error) {
	if in < 1 || out < 1 {
		return nil, fmt.Errorf("bytenet: conv channels must be positive, got in=%d out=%d", in, out)
	}
	if kernel < 1 || stride < 1 || dilation < 1 || groups < 1 {
		return nil, fmt.Errorf("bytenet: conv kernel/stride/dilation/groups must be positive, got %d/%d/%d/%d", kernel, stride, dilation, groups)
	}
	if in%groups != 0 || out%groups != 0 {
		return nil, fmt.Errorf("bytenet: conv channels (%d in, %d out) not divisible by %d groups", in, out, groups)
	}
	if (kernel-1)*dilation%2 != 0 {
		return nil, fmt.Errorf("bytenet: kernel %d with dilation %d cannot be padded to same length", kernel, dilation)
	}

	fanIn := (in / groups) * kernel
	bound := tensor.KaimingBound(fanIn)
	c := &ConvLayer{
		Weight:      tensor.NewMat(out, fanIn),
		InChannels:  in,
		OutChannels: out,
		Kernel:      kernel,
		Stride:      stride,
		Dilation:    dilation,
		Groups:      groups,
		padding:     dilation * (kernel - 1) / 2,
	}
	tensor.FillUniform(c.Weight.Data, bound, rng)
	if withBias {
		c.Bias = make([]float32, out)
		tensor.FillUniform(c.Bias, bound, rng)
	}
	if spectralNorm {
		c.sn = tensor.NewSpectralNorm(c.Weight, rng)
	}
	return c, nil
}

// Forward convolves (B, L, in) to (B, L', out); L' = L for stride 1.
func (c *ConvLayer) Forward(x *tensor.Seq, training bool) *tensor.Seq {
	w := c.Weight
	if c.sn != nil {
		w = c.sn.Apply(training)
	}
	return tensor.Conv1D(x, w, c.Bias, c.Kernel, c.Stride, c.Dilation, c.Groups, c.padding)
}

// PositionFeedForward is a learned per-position linear map across the channel
// axis, the width-1 convolution of the ByteNet block. When spectralNorm is
// set the weight is rescaled to operator norm at most 1 on every evaluation,
// keeping the layer Lipschitz-bounded for the GP head.
type PositionFeedForward struct {
	Weight *tensor.Mat // (out, in)
	Bias   []float32

	sn *tensor.SpectralNorm
}

// NewPositionFeedForward constructs the projection with kaiming-uniform init.
func NewPositionFeedForward(in, out int, spectralNorm bool, rng *rand.Rand) *PositionFeedForward {
	bound := tensor.KaimingBound(in)
	p := &PositionFeedForward{
		Weight: tensor.NewMat(out, in),
		Bias:   make([]float32, out),
	}
	tensor.FillUniform(p.Weight.Data, bound, rng)
	tensor.FillUniform(p.Bias, bound, rng)
	if spectralNorm {
		p.sn = tensor.NewSpectralNorm(p.Weight, rng)
	}
	return p
}

func (p *PositionFeedForward) effectiveWeight(training bool) *tensor.Mat {
	if p.sn != nil {
		return p.sn.Apply(training)
	}
	return p.Weight
}

// Forward maps (B, L, in) to (B, L, out).
func (p *PositionFeedForward) Forward(x *tensor.Seq, training bool) *tensor.Seq {
	w := p.effectiveWeight(training)
	out := tensor.NewSeq(x.B, x.L, w.R)
	for b := 0; b < x.B; b++ {
		for l := 0; l < x.L; l++ {
			src := x.Pos(b, l)
			dst := out.Pos(b, l)
			for o := 0; o < w.R; o++ {
				row := w.Row(o)
				sum := p.Bias[o]
				for i, v := range src {
					sum += v * row[i]
				}
				dst[o] = sum
			}
		}
	}
	return out
}

// ForwardRows applies the same projection to a matrix of row vectors, used
// for the pooled representation.
func (p *PositionFeedForward) ForwardRows(x *tensor.Mat, training bool) *tensor.Mat {
	return tensor.Linear(x, p.effectiveWeight(training), p.Bias)
}

// layerNorm is a per-position normalization over channels with learned scale
// and shift.
type layerNorm struct {
	Gamma, Beta []float32
}

func newLayerNorm(dim int) *layerNorm {
	n := &layerNorm{Gamma: make([]float32, dim), Beta: make([]float32, dim)}
	for i := range n.Gamma {
		n.Gamma[i] = 1
	}
	return n
}

func (n *layerNorm) forward(x *tensor.Seq) *tensor.Seq {
	return tensor.LayerNorm(x, n.Gamma, n.Beta, normEps)
}

// ByteNetBlock is the residual block: two norm+GELU+projection stages
// sandwiching one dilated convolution, added back to the block input. The
// residual sum requires dIn == dOut, enforced at construction so the add can
// never misfire at call time.
type ByteNetBlock struct {
	ln1  *layerNorm
	pff1 *PositionFeedForward
	ln2  *layerNorm
	conv *ConvLayer
	ln3  *layerNorm
	pff2 *PositionFeedForward
}

// NewByteNetBlock constructs a block with hidden width dHidden and dilated
// convolution kernel/dilation as given.
func NewByteNetBlock(dIn, dHidden, dOut, kernel, dilation, groups int, spectralNorm bool, rng *rand.Rand) (*ByteNetBlock, error) {
	if dIn != dOut {
		return nil, fmt.Errorf("bytenet: residual block needs matching in/out channels, got %d and %d", dIn, dOut)
	}
	conv, err := NewConvLayer(dHidden, dHidden, kernel, 1, dilation, groups, true, spectralNorm, rng)
	if err != nil {
		return nil, err
	}
	return &ByteNetBlock{
		ln1:  newLayerNorm(dIn),
		pff1: NewPositionFeedForward(dIn, dHidden, spectralNorm, rng),
		ln2:  newLayerNorm(dHidden),
		conv: conv,
		ln3:  newLayerNorm(dHidden),
		pff2: NewPositionFeedForward(dHidden, dOut, spectralNorm, rng),
	}, nil
}

// Forward computes input + stages(input), preserving shape.
func (b *ByteNetBlock) Forward(x *tensor.Seq, training bool) *tensor.Seq {
	h := b.ln1.forward(x)
	h = tensor.GELU(h)
	h = b.pff1.Forward(h, training)
	h = b.ln2.forward(h)
	h = tensor.GELU(h)
	h = b.conv.Forward(h, training)
	h = b.ln3.forward(h)
	h = tensor.GELU(h)
	h = b.pff2.Forward(h, training)
	out := x.Clone()
	tensor.Add(out.Data, h.Data)
	return out
}

// DilationSchedule computes the per-layer dilation sequence: with
// period = floor(log2(dilFactor)) + 1, layer n gets dilation 2^(n mod period).
// The cycle keeps the maximum dilation at or below dilFactor while deeper
// layers keep mixing receptive fields of different widths.
func DilationSchedule(nLayers, dilFactor int) ([]int, error) {
	if nLayers < 1 {
		return nil, fmt.Errorf("bytenet: layer count must be >= 1, got %d", nLayers)
	}
	if dilFactor < 1 {
		return nil, fmt.Errorf("bytenet: dilation growth factor must be >= 1, got %d", dilFactor)
	}
	period := int(math.Log2(float64(dilFactor))) + 1
	out := make([]int, nLayers)
	for n := range out {
		out[n] = 1 << (n % period)
	}
	return out, nil
}
