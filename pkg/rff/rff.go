// Package rff implements the last-layer Gaussian-process approximation used
// for uncertainty calibration: a fixed random Fourier feature expansion of
// the penultimate representation, a learned linear output on those features,
// and an online-updated precision matrix whose inverse yields predictive
// variance for regression.
package rff

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

// Likelihood selects the precision-update weighting for the task the head
// serves. The values mirror the objective names used by the models.
type Likelihood string

const (
	Gaussian       Likelihood = "Gaussian"
	BinaryLogistic Likelihood = "binary_logistic"
	Multiclass     Likelihood = "multiclass"
)

// Config fixes a layer at construction.
type Config struct {
	// InFeatures is the width of the incoming representation.
	InFeatures int
	// RFFs is the number of random Fourier features; must be even since
	// features come in cos/sin pairs.
	RFFs int
	// OutTargets is the output width (1 for regression and binary tasks,
	// the category count for multiclass).
	OutTargets int
	// CovMomentum discounts the precision moving average, in (0, 1), or is
	// exactly -1 to accumulate a plain running sum.
	CovMomentum float64
	// RidgePenalty regularizes the precision matrix and scales the
	// predictive variance.
	RidgePenalty float64
	Likelihood   Likelihood
	RandomSeed   int64
}

func (c Config) validate() error {
	if c.InFeatures < 1 {
		return fmt.Errorf("rff: in features must be >= 1, got %d", c.InFeatures)
	}
	if c.RFFs < 2 || c.RFFs%2 != 0 {
		return fmt.Errorf("rff: RFFs must be even and >= 2, got %d", c.RFFs)
	}
	if c.OutTargets < 1 {
		return fmt.Errorf("rff: out targets must be >= 1, got %d", c.OutTargets)
	}
	if c.CovMomentum != -1 && (c.CovMomentum <= 0 || c.CovMomentum >= 1) {
		return fmt.Errorf("rff: covariance momentum must be in (0, 1) or -1, got %g", c.CovMomentum)
	}
	if c.RidgePenalty <= 0 {
		return fmt.Errorf("rff: ridge penalty must be > 0, got %g", c.RidgePenalty)
	}
	switch c.Likelihood {
	case Gaussian, BinaryLogistic, Multiclass:
	default:
		return fmt.Errorf("rff: unrecognized likelihood %q", c.Likelihood)
	}
	return nil
}

// VanillaLayer is the classic random-feature GP output layer. The random
// projection is fixed at construction; the output weights are the learned
// parameters; the precision matrix is the calibration state updated during
// training-style calls and inverted lazily for variance estimation.
type VanillaLayer struct {
	cfg Config

	// Projection holds the fixed feature directions, (RFFs/2, InFeatures).
	Projection *tensor.Mat
	// OutWeight holds the learned output map, (OutTargets, RFFs).
	OutWeight *tensor.Mat

	precision *mat.SymDense
	cov       *mat.SymDense
}

// NewVanillaLayer constructs a layer. The random seed deterministically
// fixes the feature directions and the output-weight init; two layers built
// from the same config are identical.
func NewVanillaLayer(cfg Config) (*VanillaLayer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.RandomSeed))

	proj := tensor.NewMat(cfg.RFFs/2, cfg.InFeatures)
	tensor.FillNormal(proj.Data, rng)

	w := tensor.NewMat(cfg.OutTargets, cfg.RFFs)
	tensor.FillUniform(w.Data, tensor.KaimingBound(cfg.RFFs), rng)

	l := &VanillaLayer{cfg: cfg, Projection: proj, OutWeight: w}
	l.ResetPrecision()
	return l, nil
}

// Config returns the construction config.
func (l *VanillaLayer) Config() Config {
	return l.cfg
}

// ResetPrecision restores the precision matrix to its ridge-scaled identity
// prior and drops any cached covariance.
func (l *VanillaLayer) ResetPrecision() {
	n := l.cfg.RFFs
	l.precision = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		l.precision.SetSym(i, i, l.cfg.RidgePenalty)
	}
	l.cov = nil
}

// Features maps representations to the random Fourier feature space:
// sqrt(2/RFFs) * [cos(Wx), sin(Wx)], one row per input row. The feature
// vectors have unit norm by construction.
func (l *VanillaLayer) Features(x *tensor.Mat) *tensor.Mat {
	proj := tensor.Linear(x, l.Projection, nil)
	half := l.cfg.RFFs / 2
	scale := float32(math.Sqrt(2.0 / float64(l.cfg.RFFs)))
	out := tensor.NewMat(x.R, l.cfg.RFFs)
	for r := 0; r < x.R; r++ {
		src := proj.Row(r)
		dst := out.Row(r)
		for j, v := range src {
			s, c := math.Sincos(float64(v))
			dst[j] = scale * float32(c)
			dst[half+j] = scale * float32(s)
		}
	}
	return out
}

// Forward returns the point predictions, (rows, OutTargets). When
// updatePrecision is set the call also folds the batch into the precision
// matrix, weighting each sample by the likelihood's local output variance
// (1 for Gaussian, p(1-p) otherwise).
func (l *VanillaLayer) Forward(x *tensor.Mat, updatePrecision bool) *tensor.Mat {
	phi := l.Features(x)
	preds := tensor.Linear(phi, l.OutWeight, nil)
	if updatePrecision {
		l.updatePrecision(phi, preds)
	}
	return preds
}

// ForwardWithVar returns the point predictions together with the predictive
// variance for each row. The variance comes from the inverse precision
// matrix, which is computed on first use and cached until the next
// precision update.
func (l *VanillaLayer) ForwardWithVar(x *tensor.Mat) (*tensor.Mat, []float32, error) {
	phi := l.Features(x)
	preds := tensor.Linear(phi, l.OutWeight, nil)
	if err := l.ensureCovariance(); err != nil {
		return nil, nil, err
	}
	variance := make([]float32, x.R)
	n := l.cfg.RFFs
	phi64 := make([]float64, n)
	scratch := mat.NewVecDense(n, nil)
	for r := 0; r < x.R; r++ {
		row := phi.Row(r)
		for i, v := range row {
			phi64[i] = float64(v)
		}
		vec := mat.NewVecDense(n, phi64)
		scratch.MulVec(l.cov, vec)
		variance[r] = float32(l.cfg.RidgePenalty * mat.Dot(vec, scratch))
	}
	return preds, variance, nil
}

func (l *VanillaLayer) updatePrecision(phi, preds *tensor.Mat) {
	m := l.cfg.CovMomentum
	weight := 1.0
	if m != -1 {
		l.precision.ScaleSym(m, l.precision)
		weight = 1 - m
	}
	n := l.cfg.RFFs
	phi64 := make([]float64, n)
	for r := 0; r < phi.R; r++ {
		row := phi.Row(r)
		for i, v := range row {
			phi64[i] = float64(v)
		}
		coeff := l.likelihoodCoeff(preds.Row(r))
		l.precision.SymRankOne(l.precision, weight*coeff, mat.NewVecDense(n, phi64))
	}
	l.cov = nil
}

// likelihoodCoeff is the per-sample weight on the rank-one precision
// update: the local variance of the predicted output under the layer's
// likelihood.
func (l *VanillaLayer) likelihoodCoeff(pred []float32) float64 {
	switch l.cfg.Likelihood {
	case BinaryLogistic:
		p := float64(tensor.Sigmoid(pred[0]))
		return p * (1 - p)
	case Multiclass:
		probs := make([]float32, len(pred))
		copy(probs, pred)
		tensor.Softmax(probs)
		var pmax float64
		for _, v := range probs {
			if float64(v) > pmax {
				pmax = float64(v)
			}
		}
		return pmax * (1 - pmax)
	default:
		return 1
	}
}

func (l *VanillaLayer) ensureCovariance() error {
	if l.cov != nil {
		return nil
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(l.precision); !ok {
		return fmt.Errorf("rff: precision matrix is not positive definite")
	}
	cov := mat.NewSymDense(l.cfg.RFFs, nil)
	if err := chol.InverseTo(cov); err != nil {
		return fmt.Errorf("rff: invert precision: %w", err)
	}
	l.cov = cov
	return nil
}

// PrecisionState returns the full precision matrix row-major, for
// checkpointing.
func (l *VanillaLayer) PrecisionState() []float64 {
	n := l.cfg.RFFs
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = l.precision.At(i, j)
		}
	}
	return out
}

// SetPrecisionState restores a checkpointed precision matrix.
func (l *VanillaLayer) SetPrecisionState(data []float64) error {
	n := l.cfg.RFFs
	if len(data) != n*n {
		return fmt.Errorf("rff: precision state has %d elements, want %d", len(data), n*n)
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, data[i*n+j])
		}
	}
	l.precision = sym
	l.cov = nil
	return nil
}
