package evolve

import (
	"fmt"

	"github.com/jlparkI/resp-protein-toolkit/pkg/bytenet"
	"github.com/jlparkI/resp-protein-toolkit/pkg/encode"
)

// ModelScorer adapts a trained regression model and a sequence encoder to
// the Scorer interface. Variance is requested from the model and comes back
// nil unless the model carries a GP head.
type ModelScorer struct {
	Model   *bytenet.Model
	Encoder *encode.Encoder
}

// NewModelScorer wraps model with the standard amino-acid encoder.
func NewModelScorer(model *bytenet.Model) (*ModelScorer, error) {
	if model.Paired() {
		return nil, fmt.Errorf("evolve: annealing needs a single-sequence model")
	}
	if model.Config().Objective != bytenet.Regression {
		return nil, fmt.Errorf("evolve: annealing needs a regression model, got %q", model.Config().Objective)
	}
	return &ModelScorer{Model: model, Encoder: encode.New(false)}, nil
}

// Score one-hot encodes the sequences and scores them with the model.
func (s *ModelScorer) Score(seqs []string) ([]float32, []float32, error) {
	oneHot, err := s.Encoder.OneHot(seqs)
	if err != nil {
		return nil, nil, err
	}
	x := make([][][]float32, oneHot.B)
	for b := 0; b < oneHot.B; b++ {
		seq := make([][]float32, oneHot.L)
		for l := 0; l < oneHot.L; l++ {
			pos := make([]float32, oneHot.C)
			copy(pos, oneHot.Pos(b, l))
			seq[l] = pos
		}
		x[b] = seq
	}
	pred, err := s.Model.Predict(x, true)
	if err != nil {
		return nil, nil, err
	}
	return pred.Values, pred.Variance, nil
}
