package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/jlparkI/resp-protein-toolkit/pkg/bytenet"
)

var (
	modelConfigPath string
	checkpointPath  string
	allowGap        bool
	logLevel        string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-config",
			Aliases:     []string{"m"},
			Usage:       "path to the model architecture yaml",
			Destination: &modelConfigPath,
		},
		&cli.StringFlag{
			Name:        "checkpoint",
			Aliases:     []string{"w"},
			Usage:       "path to the safetensors checkpoint",
			Destination: &checkpointPath,
		},
		&cli.BoolFlag{
			Name:        "allow-gap",
			Usage:       "accept the alignment gap symbol '-' in sequences",
			Destination: &allowGap,
		},
	}
}

// loadModel builds the model described by --model-config, restoring weights
// from --checkpoint when one is given (otherwise the seeded init is used,
// which is only useful for smoke testing).
func loadModel() (*bytenet.Model, error) {
	if modelConfigPath == "" {
		return nil, fmt.Errorf("--model-config is required")
	}
	data, err := os.ReadFile(modelConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read model config: %w", err)
	}
	var cfg bytenet.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}
	if checkpointPath != "" {
		return bytenet.Load(checkpointPath, cfg)
	}
	return bytenet.New(cfg)
}
