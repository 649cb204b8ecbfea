package bytenet

import (
	"fmt"
	"math/rand"

	"github.com/jlparkI/resp-protein-toolkit/pkg/rff"
	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

// Objective selects what the model predicts and fixes the output head's
// width and post-activation.
type Objective string

const (
	// Regression predicts one real value per sequence.
	Regression Objective = "regression"
	// BinaryClassifier predicts one probability per sequence.
	BinaryClassifier Objective = "binary_classifier"
	// Multiclass predicts a probability vector over the configured
	// categories.
	Multiclass Objective = "multiclass"
)

// GP head hyperparameters, fixed to the reference values.
const (
	gpRFFs     = 1024
	gpMomentum = 0.999
	gpRidge    = 1e-3
)

// Config fixes a model at construction. The zero value is not usable; at
// minimum InputDim, HiddenDim, NLayers, KernelSize, DilFactor and Objective
// must be set.
type Config struct {
	// InputDim is the per-position channel count of the primary sequence.
	InputDim int `yaml:"input_dim"`
	// HiddenDim is the width inside the encoder towers.
	HiddenDim int `yaml:"hidden_dim"`
	// NLayers is the number of residual blocks per tower.
	NLayers int `yaml:"n_layers"`
	// KernelSize is the dilated convolution kernel width.
	KernelSize int `yaml:"kernel_size"`
	// DilFactor bounds the cycling dilation schedule.
	DilFactor int `yaml:"dil_factor"`
	// RepDim is the pooled representation width. Defaults to 100.
	RepDim int `yaml:"rep_dim"`
	// Dropout is applied after each residual block during training.
	Dropout float32 `yaml:"dropout"`
	// Slim halves the hidden width inside each block.
	Slim bool `yaml:"slim"`
	// LLGP selects the last-layer GP head with calibrated variance, and
	// spectral normalization throughout the towers.
	LLGP bool `yaml:"llgp"`
	// AntigenDim, when positive, makes this a paired model with a second
	// independently-weighted tower for the antigen sequence.
	AntigenDim int `yaml:"antigen_dim"`
	// Objective is one of Regression, BinaryClassifier or Multiclass.
	Objective Objective `yaml:"objective"`
	// NumCategories is the category count for Multiclass; it must be
	// greater than 2 (two-category problems use BinaryClassifier).
	NumCategories int `yaml:"num_categories"`
	// Seed drives every stochastic component: weight init, the GP head's
	// feature sampling and training-time dropout. Defaults to 123.
	Seed int64 `yaml:"seed"`
}

func (c *Config) applyDefaults() {
	if c.RepDim == 0 {
		c.RepDim = 100
	}
	if c.Seed == 0 {
		c.Seed = 123
	}
}

func (c Config) validate() error {
	switch c.Objective {
	case Regression, BinaryClassifier:
	case Multiclass:
		if c.NumCategories <= 2 {
			return fmt.Errorf("bytenet: multiclass needs more than 2 categories, got %d (use %q for two)", c.NumCategories, BinaryClassifier)
		}
	default:
		return fmt.Errorf("bytenet: unrecognized objective %q", c.Objective)
	}
	if c.InputDim < 1 || c.HiddenDim < 1 || c.RepDim < 1 {
		return fmt.Errorf("bytenet: dimensions must be positive, got input=%d hidden=%d rep=%d", c.InputDim, c.HiddenDim, c.RepDim)
	}
	if c.NLayers < 1 {
		return fmt.Errorf("bytenet: layer count must be >= 1, got %d", c.NLayers)
	}
	if c.DilFactor < 1 {
		return fmt.Errorf("bytenet: dilation growth factor must be >= 1, got %d", c.DilFactor)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("bytenet: dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.AntigenDim < 0 {
		return fmt.Errorf("bytenet: antigen dim must be >= 0, got %d", c.AntigenDim)
	}
	return nil
}

// outputWidth is the raw head width the objective requires.
func (c Config) outputWidth() int {
	if c.Objective == Multiclass {
		return c.NumCategories
	}
	return 1
}

func (c Config) likelihood() rff.Likelihood {
	switch c.Objective {
	case BinaryClassifier:
		return rff.BinaryLogistic
	case Multiclass:
		return rff.Multiclass
	default:
		return rff.Gaussian
	}
}

// ForwardOptions control a training-style forward pass.
type ForwardOptions struct {
	// UpdatePrecision folds the batch into the GP head's calibration
	// state; it should be set during training and is ignored by the
	// linear head.
	UpdatePrecision bool
	// GetVar requests predictive variance. Honored only for the GP head
	// with the regression objective; otherwise silently ignored.
	GetVar bool
}

// Prediction is the result of a forward or predict call. Exactly one of
// Values and Categorical is populated, depending on the objective; Variance
// is present only for GP-head regression with variance requested.
type Prediction struct {
	// Values holds one value per sequence: the real prediction for
	// regression, the positive-class probability for binary
	// classification.
	Values []float32
	// Categorical holds one probability row per sequence for multiclass.
	Categorical [][]float32
	// Variance holds the predictive variance per sequence when requested.
	Variance []float32
}

// Model predicts a scalar property or category for antibody sequences, with
// an optional second tower for paired antibody/antigen input.
type Model struct {
	cfg Config

	antibody *Encoder
	antigen  *Encoder
	head     outputHead
	gp       *rff.VanillaLayer

	training bool
	rng      *rand.Rand
}

// New constructs a model from cfg, validating it exhaustively so the forward
// path never sees an unrecognized objective. All weights derive
// deterministically from cfg.Seed; two models built from equal configs are
// identical.
func New(cfg Config) (*Model, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	antibody, err := newEncoder(cfg.InputDim, cfg.HiddenDim, cfg.NLayers, cfg.KernelSize,
		cfg.DilFactor, cfg.RepDim, cfg.Dropout, cfg.Slim, cfg.LLGP, rng)
	if err != nil {
		return nil, err
	}
	m := &Model{cfg: cfg, antibody: antibody, rng: rng}

	if cfg.AntigenDim > 0 {
		m.antigen, err = newEncoder(cfg.AntigenDim, cfg.HiddenDim, cfg.NLayers, cfg.KernelSize,
			cfg.DilFactor, cfg.RepDim, cfg.Dropout, cfg.Slim, cfg.LLGP, rng)
		if err != nil {
			return nil, err
		}
	}

	headIn := cfg.RepDim
	if m.antigen != nil {
		headIn *= 2
	}
	if cfg.LLGP {
		layer, err := rff.NewVanillaLayer(rff.Config{
			InFeatures:   headIn,
			RFFs:         gpRFFs,
			OutTargets:   cfg.outputWidth(),
			CovMomentum:  gpMomentum,
			RidgePenalty: gpRidge,
			Likelihood:   cfg.likelihood(),
			RandomSeed:   cfg.Seed,
		})
		if err != nil {
			return nil, err
		}
		m.gp = layer
		m.head = &gpHead{layer: layer}
	} else {
		m.head = newLinearHead(headIn, cfg.outputWidth(), false, rng)
	}
	return m, nil
}

// Config returns the construction config.
func (m *Model) Config() Config {
	return m.cfg
}

// Paired reports whether the model expects antibody/antigen sequence pairs.
func (m *Model) Paired() bool {
	return m.antigen != nil
}

// SetTraining toggles the training path: dropout and spectral-norm power
// iteration run only while training is set.
func (m *Model) SetTraining(training bool) {
	m.training = training
}

// Forward runs the single-sequence prediction path on (B, L, InputDim)
// input. Paired models must use ForwardPair instead.
func (m *Model) Forward(x *tensor.Seq, opts ForwardOptions) (Prediction, error) {
	if m.antigen != nil {
		return Prediction{}, fmt.Errorf("bytenet: paired model requires ForwardPair")
	}
	rep, err := m.antibody.Forward(x, m.training, m.rng)
	if err != nil {
		return Prediction{}, err
	}
	return m.applyHead(rep, opts)
}

// ForwardPair runs the paired prediction path: each sequence goes through
// its own tower and the pooled representations are concatenated before the
// head.
func (m *Model) ForwardPair(antibody, antigen *tensor.Seq, opts ForwardOptions) (Prediction, error) {
	if m.antigen == nil {
		return Prediction{}, fmt.Errorf("bytenet: single-sequence model has no antigen tower")
	}
	if antibody.B != antigen.B {
		return Prediction{}, fmt.Errorf("bytenet: batch mismatch, %d antibody vs %d antigen sequences", antibody.B, antigen.B)
	}
	abRep, err := m.antibody.Forward(antibody, m.training, m.rng)
	if err != nil {
		return Prediction{}, err
	}
	agRep, err := m.antigen.Forward(antigen, m.training, m.rng)
	if err != nil {
		return Prediction{}, err
	}
	joint := tensor.NewMat(abRep.R, abRep.C+agRep.C)
	for r := 0; r < joint.R; r++ {
		dst := joint.Row(r)
		copy(dst, abRep.Row(r))
		copy(dst[abRep.C:], agRep.Row(r))
	}
	return m.applyHead(joint, opts)
}

func (m *Model) applyHead(rep *tensor.Mat, opts ForwardOptions) (Prediction, error) {
	getVar := opts.GetVar && m.gp != nil && m.cfg.Objective == Regression
	raw, variance, err := m.head.evaluate(rep, m.training, opts.UpdatePrecision, getVar)
	if err != nil {
		return Prediction{}, err
	}

	switch m.cfg.Objective {
	case Regression:
		return Prediction{Values: column(raw, 0), Variance: variance}, nil
	case BinaryClassifier:
		vals := column(raw, 0)
		for i, v := range vals {
			vals[i] = tensor.Sigmoid(v)
		}
		return Prediction{Values: vals}, nil
	case Multiclass:
		rows := raw.Rows()
		for _, row := range rows {
			tensor.Softmax(row)
		}
		return Prediction{Categorical: rows}, nil
	}
	// Unreachable: New validates the objective exhaustively.
	return Prediction{}, fmt.Errorf("bytenet: model holds invalid objective %q", m.cfg.Objective)
}

func column(m *tensor.Mat, c int) []float32 {
	out := make([]float32, m.R)
	for r := range out {
		out[r] = m.Row(r)[c]
	}
	return out
}

// Predict is the inference convenience wrapper: plain nested slices in,
// plain slices out. It switches the model to evaluation mode, so dropout is
// disabled and the call is deterministic. Variance comes back only for the
// GP head with the regression objective; getVar is ignored otherwise.
func (m *Model) Predict(x [][][]float32, getVar bool) (Prediction, error) {
	seq, err := tensor.SeqFromSlices(x)
	if err != nil {
		return Prediction{}, err
	}
	m.SetTraining(false)
	return m.Forward(seq, ForwardOptions{GetVar: getVar})
}

// PredictPair mirrors Predict for paired models.
func (m *Model) PredictPair(antibody, antigen [][][]float32, getVar bool) (Prediction, error) {
	abSeq, err := tensor.SeqFromSlices(antibody)
	if err != nil {
		return Prediction{}, err
	}
	agSeq, err := tensor.SeqFromSlices(antigen)
	if err != nil {
		return Prediction{}, err
	}
	m.SetTraining(false)
	return m.ForwardPair(abSeq, agSeq, ForwardOptions{GetVar: getVar})
}
