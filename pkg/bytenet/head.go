package bytenet

import (
	"math/rand"

	"github.com/jlparkI/resp-protein-toolkit/pkg/rff"
	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

// outputHead is the single contract both head families satisfy: map a batch
// of pooled representations to raw per-target outputs, with optional
// calibration-state updates and variance estimation. Heads that cannot
// produce variance return nil for it; the model decides whether variance is
// surfaced to the caller.
type outputHead interface {
	evaluate(rep *tensor.Mat, training, updatePrecision, getVar bool) (*tensor.Mat, []float32, error)
}

// linearHead is the deterministic head, a plain linear map to the
// objective's output width. The spectral-norm slot mirrors the convolutional
// layers so the same Lipschitz constraint could be applied here, though the
// model only requests it for the GP configuration, which uses gpHead instead.
type linearHead struct {
	Weight *tensor.Mat
	Bias   []float32

	sn *tensor.SpectralNorm
}

func newLinearHead(in, out int, spectralNorm bool, rng *rand.Rand) *linearHead {
	bound := tensor.KaimingBound(in)
	h := &linearHead{
		Weight: tensor.NewMat(out, in),
		Bias:   make([]float32, out),
	}
	tensor.FillUniform(h.Weight.Data, bound, rng)
	tensor.FillUniform(h.Bias, bound, rng)
	if spectralNorm {
		h.sn = tensor.NewSpectralNorm(h.Weight, rng)
	}
	return h
}

func (h *linearHead) evaluate(rep *tensor.Mat, training, updatePrecision, getVar bool) (*tensor.Mat, []float32, error) {
	w := h.Weight
	if h.sn != nil {
		w = h.sn.Apply(training)
	}
	return tensor.Linear(rep, w, h.Bias), nil, nil
}

// gpHead adapts the random-feature GP layer to the head contract. Variance
// requests suppress the precision update, matching the reference behavior of
// variance-aware inference calls.
type gpHead struct {
	layer *rff.VanillaLayer
}

func (h *gpHead) evaluate(rep *tensor.Mat, training, updatePrecision, getVar bool) (*tensor.Mat, []float32, error) {
	if getVar {
		return h.layer.ForwardWithVar(rep)
	}
	return h.layer.Forward(rep, updatePrecision), nil, nil
}
