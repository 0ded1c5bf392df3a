package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glow/internal/api"
	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/registry"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rateLimit   float64
		rateBurst   int64
		preload     bool
		allowAny    bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the OpenAI-compatible embeddings API",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:3000",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.FloatFlag{
				Name:        "rate-limit",
				Usage:       "embedding requests per second (0 disables)",
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst size for --rate-limit",
				Value:       10,
				Destination: &rateBurst,
			},
			&cli.BoolFlag{
				Name:        "preload",
				Usage:       "load the default model before accepting requests",
				Value:       true,
				Destination: &preload,
			},
			&cli.BoolFlag{
				Name:        "allow-any-model",
				Usage:       "let requests load any directory or hub repository; otherwise unknown models get the default",
				Destination: &allowAny,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, LoadConfig(), &addr, &rateLimit, &rateBurst)

			kind, err := selectedKind()
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			dev, err := selectedDevice()
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}

			reg := registry.New(registry.Config{
				DefaultModel:  modelID,
				Revision:      revision,
				Kind:          kind,
				ModelsPath:    modelsPath,
				AllowAnyModel: allowAny,
				Device:        dev,
				Logger:        log,
			})
			defer reg.Close()

			if preload && modelID != "" {
				if _, _, err := reg.Get(ctx, ""); err != nil {
					return err
				}
			}

			server := api.NewServer(reg,
				api.WithLogger(log),
				api.WithRateLimit(rateLimit, int(rateBurst)),
			)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "model", modelID, "device", dev.String(), "cpu", device.FeatureString())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
