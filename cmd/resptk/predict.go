package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/jlparkI/resp-protein-toolkit/internal/logger"
	"github.com/jlparkI/resp-protein-toolkit/pkg/bytenet"
	"github.com/jlparkI/resp-protein-toolkit/pkg/encode"
)

func predictCmd() *cli.Command {
	var (
		seqFile string
		getVar  bool
		asJSON  bool
	)

	return &cli.Command{
		Name:      "predict",
		Usage:     "Score antibody sequences with a trained model",
		ArgsUsage: "[sequence ...]",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "seqs",
				Aliases:     []string{"f"},
				Usage:       "file with one sequence per line (- for stdin)",
				Destination: &seqFile,
			},
			&cli.BoolFlag{
				Name:        "get-var",
				Usage:       "include predictive variance (GP regression models only)",
				Destination: &getVar,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit JSON instead of TSV",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, LoadConfig())
			log := logger.FromContext(ctx)

			seqs, err := readSequences(seqFile, cmd.Args().Slice())
			if err != nil {
				return err
			}
			if len(seqs) == 0 {
				return fmt.Errorf("no sequences given; pass them as arguments or via --seqs")
			}

			model, err := loadModel()
			if err != nil {
				return err
			}
			log.Debug("model loaded", "objective", model.Config().Objective, "sequences", len(seqs))

			enc := encode.New(allowGap)
			oneHot, err := enc.OneHot(seqs)
			if err != nil {
				return err
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

			pred, err := model.Predict(x, getVar)
			if err != nil {
				return err
			}
			if asJSON {
				return writePredictionJSON(seqs, pred)
			}
			writePredictionTSV(seqs, pred)
			return nil
		},
	}
}

func readSequences(path string, args []string) ([]string, error) {
	seqs := append([]string(nil), args...)
	if path == "" {
		return seqs, nil
	}
	var in *os.File
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sequence file: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			seqs = append(seqs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sequences: %w", err)
	}
	return seqs, nil
}

func writePredictionTSV(seqs []string, pred bytenet.Prediction) {
	for i, seq := range seqs {
		switch {
		case pred.Categorical != nil:
			probs := make([]string, len(pred.Categorical[i]))
			for j, p := range pred.Categorical[i] {
				probs[j] = fmt.Sprintf("%.6f", p)
			}
			fmt.Printf("%s\t%s\n", seq, strings.Join(probs, "\t"))
		case pred.Variance != nil:
			fmt.Printf("%s\t%.6f\t%.6f\n", seq, pred.Values[i], pred.Variance[i])
		default:
			fmt.Printf("%s\t%.6f\n", seq, pred.Values[i])
		}
	}
}

func writePredictionJSON(seqs []string, pred bytenet.Prediction) error {
	type row struct {
		Sequence      string    `json:"sequence"`
		Prediction    *float32  `json:"prediction,omitempty"`
		Probabilities []float32 `json:"probabilities,omitempty"`
		Variance      *float32  `json:"variance,omitempty"`
	}
	rows := make([]row, len(seqs))
	for i := range seqs {
		rows[i].Sequence = seqs[i]
		if pred.Categorical != nil {
			rows[i].Probabilities = pred.Categorical[i]
		} else {
			rows[i].Prediction = &pred.Values[i]
		}
		if pred.Variance != nil {
			rows[i].Variance = &pred.Variance[i]
		}
	}
	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(rows)
}
