// Package modeltest generates deterministic tiny encoder checkpoints.
package modeltest

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/glow/internal/safetensors/safetensorstest"
	"github.com/samcharles93/glow/internal/tokenizer/tokenizertest"
)

// Shape holds the hyper-parameters a checkpoint is generated for.
type Shape struct {
	Vocab, Hidden, Layers, Heads, Intermediate, MaxPos, TypeVocab int
	// Gated selects the JinaBert layout (no position table, gated MLP).
	Gated bool
}

// Tiny is small enough to run a forward pass in microseconds.
var Tiny = Shape{Vocab: 32, Hidden: 8, Layers: 2, Heads: 2, Intermediate: 16, MaxPos: 16, TypeVocab: 2}

// ConfigJSON renders s as a config.json.
func (s Shape) ConfigJSON() []byte {
	pos := "absolute"
	if s.Gated {
		pos = "alibi"
	}
	return fmt.Appendf(nil, `{"model_type":"bert","vocab_size":%d,"hidden_size":%d,"num_hidden_layers":%d,`+
		`"num_attention_heads":%d,"intermediate_size":%d,"hidden_act":"gelu","max_position_embeddings":%d,`+
		`"type_vocab_size":%d,"layer_norm_eps":1e-12,"pad_token_id":0,"position_embedding_type":%q,"torch_dtype":"float32"}`,
		s.Vocab, s.Hidden, s.Layers, s.Heads, s.Intermediate, s.MaxPos, s.TypeVocab, pos)
}

// Weights returns every tensor the layout needs, filled from seed. Layer
// norm weights are one and biases zero so activations stay well scaled.
func Weights(s Shape, prefix string, seed int64) map[string]safetensorstest.Tensor {
	rng := rand.New(rand.NewSource(seed))
	out := make(map[string]safetensorstest.Tensor)
	random := func(name string, shape ...int) {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data := make([]float32, n)
		for i := range data {
			data[i] = (rng.Float32() - 0.5) * 0.2
		}
		out[prefix+name] = safetensorstest.Tensor{Shape: shape, Data: data}
	}
	norm := func(name string) {
		w := make([]float32, s.Hidden)
		for i := range w {
			w[i] = 1
		}
		out[prefix+name+".weight"] = safetensorstest.Tensor{Shape: []int{s.Hidden}, Data: w}
		out[prefix+name+".bias"] = safetensorstest.Tensor{Shape: []int{s.Hidden}, Data: make([]float32, s.Hidden)}
	}
	lin := func(name string, o, i int, bias bool) {
		random(name+".weight", o, i)
		if bias {
			random(name+".bias", o)
		}
	}

	random("embeddings.word_embeddings.weight", s.Vocab, s.Hidden)
	if !s.Gated {
		random("embeddings.position_embeddings.weight", s.MaxPos, s.Hidden)
	}
	random("embeddings.token_type_embeddings.weight", s.TypeVocab, s.Hidden)
	norm("embeddings.LayerNorm")
	for l := 0; l < s.Layers; l++ {
		p := fmt.Sprintf("encoder.layer.%d.", l)
		lin(p+"attention.self.query", s.Hidden, s.Hidden, true)
		lin(p+"attention.self.key", s.Hidden, s.Hidden, true)
		lin(p+"attention.self.value", s.Hidden, s.Hidden, true)
		lin(p+"attention.output.dense", s.Hidden, s.Hidden, true)
		norm(p + "attention.output.LayerNorm")
		if s.Gated {
			lin(p+"mlp.gated_layers", 2*s.Intermediate, s.Hidden, false)
			lin(p+"mlp.wo", s.Hidden, s.Intermediate, true)
			norm(p + "mlp.layernorm")
		} else {
			lin(p+"intermediate.dense", s.Intermediate, s.Hidden, true)
			lin(p+"output.dense", s.Hidden, s.Intermediate, true)
			norm(p + "output.LayerNorm")
		}
	}
	return out
}

// WriteDir lays out a complete checkpoint directory for s: weights,
// config.json and a WordPiece tokenizer.json.
func WriteDir(t testing.TB, s Shape) string {
	t.Helper()
	dir := t.TempDir()
	safetensorstest.WriteF32(t, filepath.Join(dir, "model.safetensors"), Weights(s, "", 7))
	for name, data := range map[string][]byte{
		"config.json":    s.ConfigJSON(),
		"tokenizer.json": tokenizertest.JSON(),
	} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}
