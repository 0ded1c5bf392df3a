package model

import (
	"github.com/samcharles93/glow/internal/device"
)

// Bert is a BERT encoder with learned absolute position embeddings.
// Token type ids are always zero.
type Bert struct {
	encoder
	Config BertConfig
}

func loadBert(cfg *BertConfig, r *weightReader, dev device.Device) (*Bert, error) {
	m := &Bert{encoder: newEncoder(cfg, dev), Config: *cfg}
	if err := m.loadEmbeddings(r, bertNames, cfg); err != nil {
		return nil, err
	}
	m.layers = make([]layer, cfg.NumHiddenLayers)
	for i := range m.layers {
		attn, err := m.loadAttention(r, bertNames, i)
		if err != nil {
			return nil, err
		}
		mlp := &geluMLP{size: cfg.IntermediateSize}
		if mlp.intermediate, err = r.linear(bertNames.intermediate(i), cfg.IntermediateSize, cfg.HiddenSize, true); err != nil {
			return nil, err
		}
		if mlp.output, err = r.linear(bertNames.output(i), cfg.HiddenSize, cfg.IntermediateSize, true); err != nil {
			return nil, err
		}
		if mlp.norm, err = r.layerNorm(bertNames.outputNorm(i), cfg.HiddenSize); err != nil {
			return nil, err
		}
		m.layers[i] = layer{attn: attn, ffn: mlp}
	}
	return m, nil
}
