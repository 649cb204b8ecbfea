package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jlparkI/resp-protein-toolkit/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		path   string
		filter string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a safetensors checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "checkpoint",
				Aliases:     []string{"w"},
				Usage:       "path to the safetensors checkpoint",
				Destination: &path,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only show tensors whose name contains this substring",
				Destination: &filter,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := safetensors.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			var total int64
			shown := 0
			for _, name := range f.Names() {
				info, _ := f.Tensor(name)
				total += info.End - info.Start
				if filter != "" && !strings.Contains(name, filter) {
					continue
				}
				dims := make([]string, len(info.Shape))
				for i, d := range info.Shape {
					dims[i] = fmt.Sprintf("%d", d)
				}
				fmt.Printf("%-48s %-5s [%s]\n", name, info.DType, strings.Join(dims, ", "))
				shown++
			}
			fmt.Printf("\n%d tensors (%d shown), %d bytes of tensor data\n", len(f.Tensors), shown, total)
			return nil
		},
	}
}
