package model

import (
	"fmt"

	"github.com/samcharles93/glow/internal/device"
)

// Load builds a model of the given kind from a validated config and a
// weight source. cfg must be the schema NewConfig(kind) returns. Missing or
// mis-shaped tensors fail with *WeightLoadError.
func Load(kind Kind, src WeightSource, cfg Config, dev device.Device) (Model, error) {
	if src == nil {
		return nil, fmt.Errorf("load %s: nil weight source", kind)
	}
	return build(kind, &weightReader{src: src}, cfg, dev)
}

// Empty builds a model of the given kind from its default preset with all
// weights zero. Every tensor views one shared read-only buffer.
func Empty(kind Kind, dev device.Device) (Model, error) {
	cfg, err := DefaultConfig(kind)
	if err != nil {
		return nil, err
	}
	return EmptyWithConfig(kind, cfg, dev)
}

// EmptyWithConfig is Empty with explicit hyper-parameters.
func EmptyWithConfig(kind Kind, cfg Config, dev device.Device) (Model, error) {
	base, err := baseConfig(kind, cfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigName(kind), err)
	}
	largest := max(
		base.VocabSize*base.HiddenSize,
		base.MaxPositionEmbeddings*base.HiddenSize,
		2*base.IntermediateSize*base.HiddenSize,
		base.TypeVocabSize*base.HiddenSize,
	)
	return build(kind, &weightReader{zero: make([]float32, largest)}, cfg, dev)
}

func build(kind Kind, r *weightReader, cfg Config, dev device.Device) (Model, error) {
	if _, err := baseConfig(kind, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigName(kind), err)
	}
	if dev.Workers <= 0 {
		dev.Workers = 1
	}
	var (
		m   Model
		err error
	)
	switch c := cfg.(type) {
	case *BertConfig:
		m, err = loadBert(c, r, dev)
	case *JinaBertConfig:
		m, err = loadJinaBert(c, r, dev)
	default:
		return nil, fmt.Errorf("unsupported model kind %s", kind)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// baseConfig checks that cfg matches kind and returns its shared fields.
func baseConfig(kind Kind, cfg Config) (*BertConfig, error) {
	switch c := cfg.(type) {
	case *BertConfig:
		if kind == KindBert {
			return c, nil
		}
	case *JinaBertConfig:
		if kind == KindJinaBert {
			return &c.BertConfig, nil
		}
	}
	return nil, fmt.Errorf("%s requires %s, got %T", kind, ConfigName(kind), cfg)
}
