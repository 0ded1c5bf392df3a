package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glow/internal/device"
)

func TestLoadConfigFile(t *testing.T) {
	t.Run("missing file yields zero config", func(t *testing.T) {
		cfg, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("loadConfigFile returned error: %v", err)
		}
		if cfg != (Config{}) {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("parses fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "model: org/tiny\nrevision: v2\nthreads: 3\nrate_limit: 2.5\nserver_address: 0.0.0.0:9000\nlog_format: json\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := loadConfigFile(path)
		if err != nil {
			t.Fatalf("loadConfigFile returned error: %v", err)
		}
		if cfg.Model != "org/tiny" || cfg.Revision != "v2" || cfg.ServerAddress != "0.0.0.0:9000" || cfg.LogFormat != "json" {
			t.Fatalf("unexpected config %+v", cfg)
		}
		if cfg.Threads == nil || *cfg.Threads != 3 || cfg.RateLimit == nil || *cfg.RateLimit != 2.5 {
			t.Fatalf("unexpected pointer fields %+v", cfg)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("model: [unterminated\n"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := loadConfigFile(path); err == nil {
			t.Fatalf("expected parse error")
		}
	})
}

func TestApplyServeConfigRespectsFlags(t *testing.T) {
	rate, burst, th := 4.0, int64(8), int64(2)
	cfg := Config{
		Model:         "org/from-config",
		Revision:      "from-config",
		Threads:       &th,
		ServerAddress: "0.0.0.0:9000",
		RateLimit:     &rate,
		RateBurst:     &burst,
	}

	var (
		addr      string
		rateLimit float64
		rateBurst int64
	)
	cmd := &cli.Command{
		Name: "serve",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:3000", Destination: &addr},
			&cli.FloatFlag{Name: "rate-limit", Destination: &rateLimit},
			&cli.Int64Flag{Name: "rate-burst", Value: 10, Destination: &rateBurst},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyServeConfig(c, cfg, &addr, &rateLimit, &rateBurst)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"serve", "--revision", "pinned", "--rate-burst", "1"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if modelID != "org/from-config" || threads != 2 || addr != "0.0.0.0:9000" || rateLimit != 4 {
		t.Fatalf("config defaults not applied: model=%q threads=%d addr=%q rate=%v", modelID, threads, addr, rateLimit)
	}
	if revision != "pinned" || rateBurst != 1 {
		t.Fatalf("explicit flags overridden: revision=%q burst=%d", revision, rateBurst)
	}
}

func TestSelectedDeviceFromEnv(t *testing.T) {
	run := func(args ...string) (device.Device, error) {
		t.Helper()
		var (
			dev    device.Device
			devErr error
		)
		cmd := &cli.Command{
			Name:  "embed",
			Flags: commonModelFlags(),
			Action: func(ctx context.Context, c *cli.Command) error {
				applyModelConfig(c, Config{Device: "cuda"})
				dev, devErr = selectedDevice()
				return nil
			},
		}
		if err := cmd.Run(context.Background(), append([]string{"embed"}, args...)); err != nil {
			t.Fatalf("run: %v", err)
		}
		return dev, devErr
	}

	t.Setenv(device.EnvDevice, "cpu")
	t.Setenv(device.EnvThreads, "3")
	dev, err := run()
	if err != nil {
		t.Fatalf("selectedDevice: %v", err)
	}
	if dev.Name != device.CPU || dev.Workers != 3 {
		t.Fatalf("device = %v, want cpu with 3 workers", dev)
	}

	dev, err = run("--threads", "5")
	if err != nil || dev.Workers != 5 {
		t.Fatalf("explicit flag should win over environment: %v, %v", dev, err)
	}

	t.Setenv(device.EnvDevice, "cuda")
	if _, err := run(); err == nil {
		t.Fatal("expected cuda from environment to be rejected")
	}
}
