package bytenet

import (
	"fmt"
	"math/rand"

	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

// Encoder is one tower of the model: a channel adjuster, a stack of residual
// blocks with cycling dilations, a down-projection to the representation
// width, mean pooling over the length axis and a final normalization. The
// output is (batch, repDim) for any input length.
type Encoder struct {
	adjuster *PositionFeedForward
	blocks   []*ByteNetBlock
	down     *PositionFeedForward
	norm     *layerNorm

	inputDim int
	repDim   int
	dropout  float32
}

func newEncoder(inputDim, hiddenDim, nLayers, kernel, dilFactor, repDim int, dropout float32, slim, spectralNorm bool, rng *rand.Rand) (*Encoder, error) {
	dilations, err := DilationSchedule(nLayers, dilFactor)
	if err != nil {
		return nil, err
	}
	dHidden := hiddenDim
	if slim {
		dHidden /= 2
	}
	if dHidden < 1 {
		return nil, fmt.Errorf("bytenet: hidden width %d too small for slim blocks", hiddenDim)
	}

	e := &Encoder{
		adjuster: NewPositionFeedForward(inputDim, hiddenDim, spectralNorm, rng),
		blocks:   make([]*ByteNetBlock, nLayers),
		down:     NewPositionFeedForward(hiddenDim, repDim, spectralNorm, rng),
		norm:     newLayerNorm(repDim),
		inputDim: inputDim,
		repDim:   repDim,
		dropout:  dropout,
	}
	for i, d := range dilations {
		block, err := NewByteNetBlock(hiddenDim, dHidden, hiddenDim, kernel, d, 1, spectralNorm, rng)
		if err != nil {
			return nil, err
		}
		e.blocks[i] = block
	}
	return e, nil
}

// Forward encodes (B, L, inputDim) to the pooled representation (B, repDim).
// Dropout runs only on the training path; evaluation is deterministic.
func (e *Encoder) Forward(x *tensor.Seq, training bool, rng *rand.Rand) (*tensor.Mat, error) {
	if x.C != e.inputDim {
		return nil, fmt.Errorf("bytenet: input has %d channels, encoder expects %d", x.C, e.inputDim)
	}
	h := e.adjuster.Forward(x, training)
	for _, block := range e.blocks {
		h = block.Forward(h, training)
		if training && e.dropout > 0 {
			tensor.Dropout(h, e.dropout, rng)
		}
	}
	h = e.down.Forward(h, training)
	pooled := tensor.MeanPool(h)
	return tensor.LayerNormRows(pooled, e.norm.Gamma, e.norm.Beta, normEps), nil
}
