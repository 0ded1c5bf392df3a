// Package loader turns a model repository into a ready Model and Tokenizer.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/model"
	"github.com/samcharles93/glow/internal/repo"
	"github.com/samcharles93/glow/internal/safetensors"
	"github.com/samcharles93/glow/internal/tokenizer"
)

const (
	WeightsFile   = "model.safetensors"
	ConfigFile    = "config.json"
	TokenizerFile = "tokenizer.json"
)

// Loader loads models from repositories. The zero value is ready to use.
type Loader struct {
	Logger logger.Logger
}

// Result is a loaded model. Close releases the mapped weights once the
// model is no longer used.
type Result struct {
	Model      model.Model
	Tokenizer  *tokenizer.Tokenizer
	Kind       model.Kind
	Config     model.Config
	ConfigJSON []byte
	Repo       string
	Revision   string

	weights *safetensors.File
}

func (r *Result) Close() error {
	if r == nil || r.weights == nil {
		return nil
	}
	return r.weights.Close()
}

// Load resolves repo with a zero Loader.
func Load(ctx context.Context, r repo.Repository, kind model.Kind, dev device.Device) (*Result, error) {
	return Loader{}.Load(ctx, r, kind, dev)
}

// Load retrieves the weights, config and tokenizer of r and builds a model
// of the given kind on dev. A zero kind is detected from config.json.
func (l Loader) Load(ctx context.Context, r repo.Repository, kind model.Kind, dev device.Device) (*Result, error) {
	log := l.Logger
	if log == nil {
		log = logger.Discard()
	}
	start := time.Now()

	paths := make(map[string]string, 3)
	for _, name := range []string{WeightsFile, ConfigFile, TokenizerFile} {
		p, err := r.Get(ctx, name)
		if err != nil {
			return nil, &RepositoryError{Artifact: name, Repo: repoLabel(r), Err: err}
		}
		paths[name] = p
	}

	tok, err := tokenizer.LoadFile(paths[TokenizerFile])
	if err != nil {
		return nil, &RepositoryError{Artifact: TokenizerFile, Repo: repoLabel(r), Err: err}
	}

	cfgJSON, err := os.ReadFile(paths[ConfigFile])
	if err != nil {
		return nil, &RepositoryError{Artifact: ConfigFile, Repo: repoLabel(r), Err: err}
	}
	if kind == 0 {
		if kind, err = DetectKind(cfgJSON); err != nil {
			return nil, &ConfigError{Expected: "a supported encoder config", Err: err}
		}
	}
	cfg, err := DecodeConfig(kind, cfgJSON)
	if err != nil {
		return nil, err
	}

	weights, err := safetensors.Open(paths[WeightsFile])
	if err != nil {
		return nil, &RepositoryError{Artifact: WeightsFile, Repo: repoLabel(r), Err: err}
	}
	m, err := model.Load(kind, model.SafetensorsSource{File: weights}, cfg, dev)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("load %s weights: %w", kind, err), weights.Close())
	}

	log.Info("model loaded",
		"repo", r.Name(),
		"revision", r.Revision(),
		"kind", kind.String(),
		"hidden", m.HiddenSize(),
		"vocab", tok.VocabSize(),
		"device", dev.String(),
		"mmap", weights.Mapped(),
		"duration", time.Since(start),
	)

	return &Result{
		Model:      m,
		Tokenizer:  tok,
		Kind:       kind,
		Config:     cfg,
		ConfigJSON: cfgJSON,
		Repo:       r.Name(),
		Revision:   r.Revision(),
		weights:    weights,
	}, nil
}

// DecodeConfig decodes config.json into the schema kind expects. Unknown
// fields are ignored.
func DecodeConfig(kind model.Kind, data []byte) (model.Config, error) {
	cfg, err := model.NewConfig(kind)
	if err != nil {
		return nil, &ConfigError{Expected: model.ConfigName(kind), Err: err}
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Expected: model.ConfigName(kind), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Expected: model.ConfigName(kind), Err: err}
	}
	return cfg, nil
}

// DetectKind picks the architecture a config.json describes.
func DetectKind(data []byte) (model.Kind, error) {
	var probe struct {
		Architectures         []string `json:"architectures"`
		PositionEmbeddingType string   `json:"position_embedding_type"`
		FeedForwardType       string   `json:"feed_forward_type"`
		ModelType             string   `json:"model_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, err
	}
	for _, a := range probe.Architectures {
		if strings.HasPrefix(a, "JinaBert") {
			return model.KindJinaBert, nil
		}
	}
	if probe.PositionEmbeddingType == "alibi" || probe.FeedForwardType != "" {
		return model.KindJinaBert, nil
	}
	if probe.ModelType == "" || probe.ModelType == "bert" {
		return model.KindBert, nil
	}
	return 0, fmt.Errorf("unsupported model_type %q", probe.ModelType)
}

func repoLabel(r repo.Repository) string {
	return r.Name() + "@" + r.Revision()
}
