package model

import (
	"github.com/samcharles93/glow/internal/device"
)

// JinaBert is the JinaBert v2 encoder: ALiBi attention bias in place of
// position embeddings and a gated GELU feed-forward block.
type JinaBert struct {
	encoder
	Config JinaBertConfig
}

func loadJinaBert(cfg *JinaBertConfig, r *weightReader, dev device.Device) (*JinaBert, error) {
	m := &JinaBert{encoder: newEncoder(&cfg.BertConfig, dev), Config: *cfg}
	m.slopes = alibiSlopes(cfg.NumAttentionHeads)
	if err := m.loadEmbeddings(r, jinaBertNames, &cfg.BertConfig); err != nil {
		return nil, err
	}
	m.layers = make([]layer, cfg.NumHiddenLayers)
	for i := range m.layers {
		attn, err := m.loadAttention(r, jinaBertNames, i)
		if err != nil {
			return nil, err
		}
		mlp := &gatedMLP{size: cfg.IntermediateSize}
		if mlp.gated, err = r.linear(jinaBertNames.gated(i), 2*cfg.IntermediateSize, cfg.HiddenSize, false); err != nil {
			return nil, err
		}
		if mlp.wo, err = r.linear(jinaBertNames.wo(i), cfg.HiddenSize, cfg.IntermediateSize, true); err != nil {
			return nil, err
		}
		if mlp.norm, err = r.layerNorm(jinaBertNames.mlpNorm(i), cfg.HiddenSize); err != nil {
			return nil, err
		}
		m.layers[i] = layer{attn: attn, ffn: mlp}
	}
	return m, nil
}
