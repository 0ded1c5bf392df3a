package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glow/internal/loader"
	"github.com/samcharles93/glow/internal/model"
	"github.com/samcharles93/glow/internal/safetensors"
	"github.com/samcharles93/glow/internal/tokenizer"
)

type inspectOptions struct {
	showTensors  bool
	showConfig   bool
	tensorLimit  int
	tensorFilter string
}

func inspectCmd() *cli.Command {
	var (
		path string
		opts inspectOptions
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a model directory or safetensors file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "model directory or .safetensors file",
				Destination: &path,
				Required:    true,
			},
			&cli.BoolFlag{Name: "tensors", Usage: "list tensors", Value: true, Destination: &opts.showTensors},
			&cli.BoolFlag{Name: "hf-config", Usage: "print raw config.json", Destination: &opts.showConfig},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &opts.tensorLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &opts.tensorFilter},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := inspect(os.Stdout, path, opts); err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			return nil
		},
	}
}

func inspect(w io.Writer, path string, opts inspectOptions) error {
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat model path %q: %w", path, err)
	}
	dir, weights := path, path
	if stat.IsDir() {
		weights = filepath.Join(path, loader.WeightsFile)
	} else {
		dir = filepath.Dir(path)
	}

	fmt.Fprintf(w, "Inspect: %s\n", path)

	if cfgBytes, err := os.ReadFile(filepath.Join(dir, loader.ConfigFile)); err == nil {
		printModelConfig(w, cfgBytes)
		if opts.showConfig {
			printRawSection(w, "HF Config (config.json)", cfgBytes)
		}
	}
	if tok, err := tokenizer.LoadFile(filepath.Join(dir, loader.TokenizerFile)); err == nil {
		section(w, "Tokenizer")
		row(w, "vocab_size", fmt.Sprintf("%d", tok.VocabSize()))
		row(w, "pad", fmt.Sprintf("%s (%d)", tok.TokenString(tok.PadID()), tok.PadID()))
	}

	f, err := safetensors.Open(weights)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	names := f.Names()
	var params, size int64
	dtypes := map[string]int{}
	for _, n := range names {
		t, _ := f.Tensor(n)
		el, err := t.Elements()
		if err != nil {
			return fmt.Errorf("tensor %s: %w", n, err)
		}
		params += int64(el)
		size += t.End - t.Start
		dtypes[t.DType]++
	}

	section(w, "Weights")
	row(w, "file", filepath.Base(weights))
	row(w, "mapped", fmt.Sprintf("%t", f.Mapped()))
	row(w, "tensors", fmt.Sprintf("%d", len(names)))
	row(w, "parameters", fmt.Sprintf("%d", params))
	row(w, "data", formatBytes(uint64(size)))
	row(w, "dtypes", formatCounts(dtypes))
	for _, k := range sortedKeys(f.Metadata) {
		row(w, "meta."+k, f.Metadata[k])
	}

	if opts.showTensors {
		section(w, "Tensors")
		shown := 0
		for _, n := range names {
			if opts.tensorFilter != "" && !strings.Contains(n, opts.tensorFilter) {
				continue
			}
			if opts.tensorLimit > 0 && shown == opts.tensorLimit {
				fmt.Fprintln(w, "...")
				break
			}
			t, _ := f.Tensor(n)
			fmt.Fprintf(w, "%-56s %-5s %v\n", n, t.DType, t.Shape)
			shown++
		}
	}
	return nil
}

func printModelConfig(w io.Writer, data []byte) {
	section(w, "Parameters")
	kind, err := loader.DetectKind(data)
	if err != nil {
		row(w, "kind", "unsupported ("+err.Error()+")")
		return
	}
	row(w, "kind", kind.String())
	cfg, err := loader.DecodeConfig(kind, data)
	if err != nil {
		row(w, "config", err.Error())
		return
	}

	var bc model.BertConfig
	switch c := cfg.(type) {
	case *model.BertConfig:
		bc = *c
	case *model.JinaBertConfig:
		bc = c.BertConfig
		row(w, "feed_forward_type", c.FeedForwardType)
	}
	row(w, "model_type", bc.ModelType)
	rowInt(w, "hidden_size", bc.HiddenSize)
	rowInt(w, "intermediate_size", bc.IntermediateSize)
	rowInt(w, "num_layers", bc.NumHiddenLayers)
	rowInt(w, "num_attention_heads", bc.NumAttentionHeads)
	rowInt(w, "vocab_size", bc.VocabSize)
	rowInt(w, "max_position_embeddings", bc.MaxPositionEmbeddings)
	rowInt(w, "type_vocab_size", bc.TypeVocabSize)
	row(w, "position_embedding_type", bc.PositionEmbeddingType)
	row(w, "hidden_act", bc.HiddenAct)
	if bc.LayerNormEps != 0 {
		row(w, "layer_norm_eps", fmt.Sprintf("%g", bc.LayerNormEps))
	}
}

func printRawSection(w io.Writer, name string, data []byte) {
	section(w, name)
	if len(data) == 0 {
		fmt.Fprintln(w, "(missing)")
		return
	}
	fmt.Fprintln(w, string(data))
}

func section(w io.Writer, title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Fprintf(w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%-24s %s\n", label+":", value)
}

func rowInt(w io.Writer, label string, v int) {
	if v == 0 {
		return
	}
	row(w, label, fmt.Sprintf("%d", v))
}

func formatCounts(m map[string]int) string {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
