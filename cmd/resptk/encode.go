package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/jlparkI/resp-protein-toolkit/pkg/encode"
)

func encodeCmd() *cli.Command {
	var (
		seqFile string
		format  string
	)

	return &cli.Command{
		Name:      "encode",
		Usage:     "Encode sequences without running a model",
		ArgsUsage: "[sequence ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "seqs",
				Aliases:     []string{"f"},
				Usage:       "file with one sequence per line (- for stdin)",
				Destination: &seqFile,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "encoding format (onehot, onehot-flat, integer)",
				Value:       "onehot",
				Destination: &format,
			},
			&cli.BoolFlag{
				Name:        "allow-gap",
				Usage:       "accept the alignment gap symbol '-' in sequences",
				Destination: &allowGap,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			seqs, err := readSequences(seqFile, cmd.Args().Slice())
			if err != nil {
				return err
			}
			if len(seqs) == 0 {
				return fmt.Errorf("no sequences given; pass them as arguments or via --seqs")
			}
			enc := encode.New(allowGap)
			out := json.NewEncoder(os.Stdout)

			switch format {
			case "onehot":
				seq, err := enc.OneHot(seqs)
				if err != nil {
					return err
				}
				encoded := make([][][]float32, seq.B)
				for b := 0; b < seq.B; b++ {
					rows := make([][]float32, seq.L)
					for l := 0; l < seq.L; l++ {
						pos := make([]float32, seq.C)
						copy(pos, seq.Pos(b, l))
						rows[l] = pos
					}
					encoded[b] = rows
				}
				return out.Encode(encoded)
			case "onehot-flat":
				m, err := enc.OneHotFlat(seqs)
				if err != nil {
					return err
				}
				return out.Encode(m.Rows())
			case "integer":
				ids, err := enc.Integer(seqs)
				if err != nil {
					return err
				}
				return out.Encode(ids)
			default:
				return fmt.Errorf("unrecognized format %q", format)
			}
		},
	}
}
