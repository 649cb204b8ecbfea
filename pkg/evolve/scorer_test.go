package evolve

import (
	"testing"

	"github.com/jlparkI/resp-protein-toolkit/pkg/bytenet"
	"github.com/jlparkI/resp-protein-toolkit/pkg/encode"
)

func newRegressionModel(t *testing.T, llgp bool) *bytenet.Model {
	t.Helper()
	m, err := bytenet.New(bytenet.Config{
		InputDim:   20,
		HiddenDim:  8,
		NLayers:    1,
		KernelSize: 3,
		DilFactor:  1,
		RepDim:     4,
		Objective:  bytenet.Regression,
		LLGP:       llgp,
		Seed:       13,
	})
	if err != nil {
		t.Fatalf("bytenet.New: %v", err)
	}
	return m
}

func TestModelScorerAnneals(t *testing.T) {
	scorer, err := NewModelScorer(newRegressionModel(t, true))
	if err != nil {
		t.Fatalf("NewModelScorer: %v", err)
	}
	cfg := Config{
		WildType:    "ACDEFGHIKL",
		Alphabet:    encode.StandardAlphabet,
		InitialTemp: 0.5,
		Decay:       0.9,
		Steps:       10,
		Lambda:      1,
		Seed:        3,
	}
	res, err := Anneal(cfg, scorer)
	if err != nil {
		t.Fatalf("Anneal: %v", err)
	}
	if len(res.Best) != len(cfg.WildType) {
		t.Fatalf("best sequence %q has wrong length", res.Best)
	}
	// GP regression model: every step must carry a variance penalty.
	for _, step := range res.Trajectory {
		if step.Uncertainty <= 0 {
			t.Fatalf("expected positive uncertainty penalty, got %f", step.Uncertainty)
		}
	}
}

func TestNewModelScorerRejectsWrongModels(t *testing.T) {
	classifier, err := bytenet.New(bytenet.Config{
		InputDim:   20,
		HiddenDim:  8,
		NLayers:    1,
		KernelSize: 3,
		DilFactor:  1,
		RepDim:     4,
		Objective:  bytenet.BinaryClassifier,
		Seed:       13,
	})
	if err != nil {
		t.Fatalf("bytenet.New: %v", err)
	}
	if _, err := NewModelScorer(classifier); err == nil {
		t.Fatal("expected error for non-regression model")
	}
}
