package model

import (
	"errors"
	"fmt"
)

// Config is an architecture specific hyper-parameter set decoded from a
// checkpoint's config.json.
type Config interface {
	Validate() error
}

// BertConfig is the config.json schema of BERT checkpoints.
type BertConfig struct {
	ModelType             string  `json:"model_type,omitempty"`
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	HiddenAct             string  `json:"hidden_act"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	TypeVocabSize         int     `json:"type_vocab_size"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
	PadTokenID            int     `json:"pad_token_id"`
	PositionEmbeddingType string  `json:"position_embedding_type,omitempty"`
}

// JinaBertConfig is the config.json schema of JinaBert v2 checkpoints.
// Positions are encoded with ALiBi, so MaxPositionEmbeddings only bounds
// the sequence length.
type JinaBertConfig struct {
	BertConfig
	FeedForwardType string `json:"feed_forward_type,omitempty"`
}

// DefaultBertConfig returns the bert-base-uncased hyper-parameters.
func DefaultBertConfig() *BertConfig {
	return &BertConfig{
		ModelType:             "bert",
		VocabSize:             30522,
		HiddenSize:            768,
		NumHiddenLayers:       12,
		NumAttentionHeads:     12,
		IntermediateSize:      3072,
		HiddenAct:             "gelu",
		MaxPositionEmbeddings: 512,
		TypeVocabSize:         2,
		LayerNormEps:          1e-12,
		PositionEmbeddingType: "absolute",
	}
}

// JinaBertV2BaseConfig returns the jina-embeddings-v2-base-en hyper-parameters.
func JinaBertV2BaseConfig() *JinaBertConfig {
	base := DefaultBertConfig()
	base.ModelType = "bert"
	base.VocabSize = 30528
	base.MaxPositionEmbeddings = 8192
	base.PositionEmbeddingType = "alibi"
	return &JinaBertConfig{BertConfig: *base, FeedForwardType: "geglu"}
}

// NewConfig returns an empty config of the schema kind expects, ready to be
// decoded into.
func NewConfig(kind Kind) (Config, error) {
	switch kind {
	case KindBert:
		return &BertConfig{}, nil
	case KindJinaBert:
		return &JinaBertConfig{}, nil
	default:
		return nil, fmt.Errorf("unsupported model kind %s", kind)
	}
}

// DefaultConfig returns the preset used by Empty.
func DefaultConfig(kind Kind) (Config, error) {
	switch kind {
	case KindBert:
		return DefaultBertConfig(), nil
	case KindJinaBert:
		return JinaBertV2BaseConfig(), nil
	default:
		return nil, fmt.Errorf("unsupported model kind %s", kind)
	}
}

// ConfigName names the config schema kind expects.
func ConfigName(kind Kind) string {
	switch kind {
	case KindBert:
		return "model.BertConfig"
	case KindJinaBert:
		return "model.JinaBertConfig"
	default:
		return "unknown"
	}
}

func (c *BertConfig) Validate() error {
	err := c.validateShape()
	if t := c.PositionEmbeddingType; t != "" && t != "absolute" {
		err = errors.Join(err, fmt.Errorf("unsupported position_embedding_type %q", t))
	}
	return err
}

func (c *BertConfig) validateShape() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("vocab_size", c.VocabSize)
	positive("hidden_size", c.HiddenSize)
	positive("num_hidden_layers", c.NumHiddenLayers)
	positive("num_attention_heads", c.NumAttentionHeads)
	positive("intermediate_size", c.IntermediateSize)
	positive("max_position_embeddings", c.MaxPositionEmbeddings)
	positive("type_vocab_size", c.TypeVocabSize)
	if c.NumAttentionHeads > 0 && c.HiddenSize%c.NumAttentionHeads != 0 {
		errs = append(errs, fmt.Errorf("hidden_size %d is not divisible by num_attention_heads %d", c.HiddenSize, c.NumAttentionHeads))
	}
	if c.LayerNormEps < 0 {
		errs = append(errs, fmt.Errorf("layer_norm_eps must not be negative"))
	}
	switch c.HiddenAct {
	case "", "gelu":
	default:
		errs = append(errs, fmt.Errorf("unsupported hidden_act %q", c.HiddenAct))
	}
	return errors.Join(errs...)
}

func (c *JinaBertConfig) Validate() error {
	err := c.validateShape()
	if t := c.PositionEmbeddingType; t != "" && t != "alibi" {
		err = errors.Join(err, fmt.Errorf("unsupported position_embedding_type %q", t))
	}
	return err
}

func (c *BertConfig) eps() float32 {
	if c.LayerNormEps == 0 {
		return 1e-12
	}
	return float32(c.LayerNormEps)
}
