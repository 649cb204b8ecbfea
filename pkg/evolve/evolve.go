// Package evolve searches antibody sequence space with simulated annealing:
// point mutations of a wild-type sequence scored by a model, with a
// Metropolis acceptance rule that penalizes candidates the model is
// uncertain about. High-variance regions of sequence space are exactly where
// a fitness model extrapolates, so the uncertainty penalty keeps the search
// inside territory the model can be trusted in.
package evolve

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Scorer scores a batch of sequences, optionally with a predictive
// uncertainty per sequence (nil when the model cannot estimate one).
type Scorer interface {
	Score(seqs []string) (scores []float32, variance []float32, err error)
}

// Config fixes one annealing run.
type Config struct {
	// WildType is the starting sequence.
	WildType string
	// Positions lists the zero-based positions allowed to mutate. Empty
	// means every position.
	Positions []int
	// Alphabet holds the symbols mutations draw from.
	Alphabet string
	// InitialTemp and Decay define the geometric temperature schedule
	// temp_n = InitialTemp * Decay^n.
	InitialTemp float64
	Decay       float64
	// Steps is the number of proposal/acceptance rounds.
	Steps int
	// Lambda weights the uncertainty penalty: candidates are judged on
	// score - Lambda*sqrt(variance).
	Lambda float64
	// Seed makes the run reproducible.
	Seed int64
}

func (c Config) validate() error {
	if len(c.WildType) == 0 {
		return fmt.Errorf("evolve: wild type sequence is empty")
	}
	if len(c.Alphabet) < 2 {
		return fmt.Errorf("evolve: alphabet needs at least 2 symbols, got %d", len(c.Alphabet))
	}
	if c.InitialTemp <= 0 {
		return fmt.Errorf("evolve: initial temperature must be > 0, got %g", c.InitialTemp)
	}
	if c.Decay <= 0 || c.Decay > 1 {
		return fmt.Errorf("evolve: decay must be in (0, 1], got %g", c.Decay)
	}
	if c.Steps < 1 {
		return fmt.Errorf("evolve: step count must be >= 1, got %d", c.Steps)
	}
	if c.Lambda < 0 {
		return fmt.Errorf("evolve: lambda must be >= 0, got %g", c.Lambda)
	}
	for _, p := range c.Positions {
		if p < 0 || p >= len(c.WildType) {
			return fmt.Errorf("evolve: mutation position %d outside sequence of length %d", p, len(c.WildType))
		}
	}
	return nil
}

// Step records one proposal.
type Step struct {
	Sequence    string
	Score       float64
	Uncertainty float64
	Temp        float64
	Accepted    bool
}

// Result is the outcome of a run: the best penalized sequence seen, its raw
// score, and the full proposal trajectory.
type Result struct {
	Best       string
	BestScore  float64
	Trajectory []Step
}

// Anneal runs the search. Identical configs with identical scorers produce
// identical results.
func Anneal(cfg Config, scorer Scorer) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	positions := cfg.Positions
	if len(positions) == 0 {
		positions = make([]int, len(cfg.WildType))
		for i := range positions {
			positions[i] = i
		}
	}

	current := cfg.WildType
	currentObj, currentScore, err := objective(cfg, scorer, current)
	if err != nil {
		return Result{}, err
	}
	best, bestObj, bestScore := current, currentObj, currentScore

	res := Result{Trajectory: make([]Step, 0, cfg.Steps)}
	temp := cfg.InitialTemp
	for n := 0; n < cfg.Steps; n++ {
		candidate := mutate(current, positions, cfg.Alphabet, rng)
		obj, score, err := objective(cfg, scorer, candidate)
		if err != nil {
			return Result{}, err
		}

		accepted := obj >= currentObj
		if !accepted {
			accepted = rng.Float64() < math.Exp((obj-currentObj)/temp)
		}
		res.Trajectory = append(res.Trajectory, Step{
			Sequence:    candidate,
			Score:       score,
			Uncertainty: score - obj,
			Temp:        temp,
			Accepted:    accepted,
		})
		if accepted {
			current, currentObj = candidate, obj
			if obj > bestObj {
				best, bestObj, bestScore = candidate, obj, score
			}
		}
		temp *= cfg.Decay
	}
	res.Best = best
	res.BestScore = bestScore
	return res, nil
}

// objective returns the penalized acceptance criterion and the raw score.
func objective(cfg Config, scorer Scorer, seq string) (obj, score float64, err error) {
	scores, variance, err := scorer.Score([]string{seq})
	if err != nil {
		return 0, 0, fmt.Errorf("evolve: score %s: %w", seq, err)
	}
	if len(scores) != 1 {
		return 0, 0, fmt.Errorf("evolve: scorer returned %d scores for 1 sequence", len(scores))
	}
	score = float64(scores[0])
	obj = score
	if cfg.Lambda > 0 && len(variance) == 1 {
		obj -= cfg.Lambda * math.Sqrt(math.Max(float64(variance[0]), 0))
	}
	return obj, score, nil
}

// mutate swaps one allowed position for a different alphabet symbol.
func mutate(seq string, positions []int, alphabet string, rng *rand.Rand) string {
	pos := positions[rng.Intn(len(positions))]
	var b strings.Builder
	b.Grow(len(seq))
	b.WriteString(seq[:pos])
	for {
		sym := alphabet[rng.Intn(len(alphabet))]
		if sym != seq[pos] {
			b.WriteByte(sym)
			break
		}
	}
	b.WriteString(seq[pos+1:])
	return b.String()
}
