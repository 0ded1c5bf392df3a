package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/model"
)

var (
	modelID    string
	revision   string
	variant    string
	modelsPath string
	deviceName string
	threads    int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "hub repository (org/name), model directory, or name under --models-path",
			Destination: &modelID,
		},
		&cli.StringFlag{
			Name:        "revision",
			Usage:       "hub revision",
			Value:       "main",
			Destination: &revision,
		},
		&cli.StringFlag{
			Name:        "variant",
			Usage:       "model variant (bert, jinabert); detected from config.json when empty",
			Destination: &variant,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory of local model directories",
			Destination: &modelsPath,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "compute device (auto, cpu, cuda)",
			Value:       "auto",
			Sources:     cli.EnvVars(device.EnvDevice),
			Destination: &deviceName,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "worker goroutines per forward pass (0 = GOMAXPROCS)",
			Sources:     cli.EnvVars(device.EnvThreads),
			Destination: &threads,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (trace, debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// setupLogging builds the process logger and stores it in the context for
// subcommands.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	applyLoggingConfig(cmd, LoadConfig())
	if debug {
		logLevel = "debug"
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, cli.Exit("error: "+err.Error(), 1)
	}
	log, err := logger.Build(os.Stderr, logFormat, level)
	if err != nil {
		return ctx, cli.Exit("error: "+err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func selectedKind() (model.Kind, error) {
	if variant == "" {
		return 0, nil
	}
	return model.ParseKind(variant)
}

func selectedDevice() (device.Device, error) {
	return device.Open(deviceName, int(threads))
}
