package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glow/internal/embed"
	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/registry"
)

type embedOutput struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Usage      embed.Usage `json:"usage"`
}

func embedCmd() *cli.Command {
	var (
		normalize bool
		pretty    bool
	)

	return &cli.Command{
		Name:      "embed",
		Usage:     "Embed sentences given as arguments or as lines on stdin",
		ArgsUsage: "[sentence...]",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{
				Name:        "normalize",
				Usage:       "L2-normalize embeddings",
				Value:       true,
				Destination: &normalize,
			},
			&cli.BoolFlag{
				Name:        "pretty",
				Usage:       "indent JSON output",
				Destination: &pretty,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			sentences := cmd.Args().Slice()
			if len(sentences) == 0 {
				lines, err := readLines(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				sentences = lines
			}
			if len(sentences) == 0 {
				return cli.Exit("error: no sentences given", 1)
			}

			kind, err := selectedKind()
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			dev, err := selectedDevice()
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}

			reg := registry.New(registry.Config{
				DefaultModel: modelID,
				Revision:     revision,
				Kind:         kind,
				ModelsPath:   modelsPath,
				Device:       dev,
				Logger:       log,
			})
			defer reg.Close()

			res, err := reg.Embed(ctx, modelID, sentences, normalize)
			if err != nil {
				return err
			}
			return writeJSON(cmd.Root().Writer, embedOutput{
				Model:      res.Model,
				Embeddings: res.Embeddings,
				Usage:      res.Usage,
			}, pretty)
		},
	}
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
