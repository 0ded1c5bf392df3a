package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/registry"
)

func listModelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List local model directories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "directory of local model directories",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			reg := registry.New(registry.Config{ModelsPath: modelsPath, Logger: log})
			defer reg.Close()
			models, err := reg.ListModels()
			if err != nil {
				return err
			}
			if len(models) == 0 {
				return cli.Exit(fmt.Sprintf("error: no models found (set --models-path or %s)", registry.EnvModelsDir), 1)
			}
			for _, m := range models {
				_, _ = fmt.Fprintln(cmd.Root().Writer, m)
			}
			return nil
		},
	}
}
