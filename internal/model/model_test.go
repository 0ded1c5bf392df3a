package model

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/model/modeltest"
	"github.com/samcharles93/glow/internal/safetensors"
	"github.com/samcharles93/glow/internal/safetensors/safetensorstest"
	"github.com/samcharles93/glow/internal/tensor"
)

type mapSource map[string]safetensorstest.Tensor

func (m mapSource) TensorF32(name string) ([]float32, []int, error) {
	t, ok := m[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", safetensors.ErrTensorNotFound, name)
	}
	return t.Data, t.Shape, nil
}

var cpu = device.Device{Name: device.CPU, Workers: 2}

func tinyBertConfig(s modeltest.Shape) *BertConfig {
	return &BertConfig{
		VocabSize:             s.Vocab,
		HiddenSize:            s.Hidden,
		NumHiddenLayers:       s.Layers,
		NumAttentionHeads:     s.Heads,
		IntermediateSize:      s.Intermediate,
		HiddenAct:             "gelu",
		MaxPositionEmbeddings: s.MaxPos,
		TypeVocabSize:         s.TypeVocab,
		LayerNormEps:          1e-12,
	}
}

func tinyJinaConfig(s modeltest.Shape) *JinaBertConfig {
	c := &JinaBertConfig{BertConfig: *tinyBertConfig(s)}
	c.PositionEmbeddingType = "alibi"
	return c
}

func mustIDs(t *testing.T, rows ...[]int) tensor.IDs {
	t.Helper()
	ids, err := tensor.StackIDs(rows)
	if err != nil {
		t.Fatalf("StackIDs: %v", err)
	}
	return ids
}

func assertFinite(t *testing.T, out *tensor.Tensor3) {
	t.Helper()
	for i, v := range out.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite output at %d: %v", i, v)
		}
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want Kind
	}{
		{"bert", KindBert},
		{"BERT", KindBert},
		{"generic-encoder", KindBert},
		{"jinabert", KindJinaBert},
		{"Jina-Bert", KindJinaBert},
		{" alternate-encoder ", KindJinaBert},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseKind(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseKind("gpt2"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	var k Kind
	if err := k.UnmarshalText([]byte("jina_bert")); err != nil || k != KindJinaBert {
		t.Fatalf("UnmarshalText = %v, %v", k, err)
	}
	if b, _ := KindBert.MarshalText(); string(b) != "bert" {
		t.Fatalf("MarshalText = %q", b)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultBertConfig().Validate(); err != nil {
		t.Fatalf("default bert config invalid: %v", err)
	}
	if err := JinaBertV2BaseConfig().Validate(); err != nil {
		t.Fatalf("default jina config invalid: %v", err)
	}

	bad := DefaultBertConfig()
	bad.HiddenSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero hidden size")
	}
	bad = DefaultBertConfig()
	bad.NumAttentionHeads = 7
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for heads not dividing hidden")
	}
	bad = DefaultBertConfig()
	bad.PositionEmbeddingType = "alibi"
	if err := bad.Validate(); err == nil {
		t.Fatal("bert must reject alibi positions")
	}
	jina := JinaBertV2BaseConfig()
	jina.HiddenAct = "relu"
	if err := jina.Validate(); err == nil {
		t.Fatal("expected error for unsupported activation")
	}
}

func TestAlibiSlopes(t *testing.T) {
	t.Parallel()

	s8 := alibiSlopes(8)
	for i, v := range s8 {
		want := float32(-1 / math.Pow(2, float64(i+1)))
		if math.Abs(float64(v-want)) > 1e-7 {
			t.Fatalf("slope[%d] = %v, want %v", i, v, want)
		}
	}

	s12 := alibiSlopes(12)
	if len(s12) != 12 {
		t.Fatalf("len = %d, want 12", len(s12))
	}
	// Odd positions of the 16-head series first, then the even ones.
	if s12[0] != -0.5 || s12[7] != -1.0/256 {
		t.Fatalf("unexpected leading slopes: %v", s12[:8])
	}
	if math.Abs(float64(s12[8])+1/math.Sqrt2) > 1e-6 {
		t.Fatalf("slope[8] = %v, want %v", s12[8], -1/math.Sqrt2)
	}
}

func TestLoadBertForward(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny
	m, err := Load(KindBert, mapSource(modeltest.Weights(s, "", 1)), tinyBertConfig(s), cpu)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.HiddenSize() != s.Hidden {
		t.Fatalf("HiddenSize = %d", m.HiddenSize())
	}

	out, err := m.Forward(mustIDs(t, []int{2, 5, 7, 3}, []int{2, 9, 3, 0}))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if b, l, h := out.Dims(); b != 2 || l != 4 || h != s.Hidden {
		t.Fatalf("dims = %d,%d,%d", b, l, h)
	}
	assertFinite(t, out)

	// Rows are independent: the same row alone gives the same states.
	single, err := m.Forward(mustIDs(t, []int{2, 5, 7, 3}))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for j := 0; j < 4; j++ {
		a, b := out.Vec(0, j), single.Vec(0, j)
		for d := range a {
			if math.Abs(float64(a[d]-b[d])) > 1e-5 {
				t.Fatalf("row 0 pos %d differs in batch: %v vs %v", j, a[d], b[d])
			}
		}
	}
}

func TestLoadJinaBertForward(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny
	s.Gated = true
	m, err := Load(KindJinaBert, mapSource(modeltest.Weights(s, "", 2)), tinyJinaConfig(s), cpu)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := m.Forward(mustIDs(t, []int{2, 5, 7, 3}))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	assertFinite(t, out)

	// Without position embeddings, order only matters through ALiBi: the
	// first token sees its neighbours at different distances here.
	shuffled, err := m.Forward(mustIDs(t, []int{2, 3, 7, 5}))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	same := true
	for d, v := range out.Vec(0, 0) {
		if math.Abs(float64(v-shuffled.Vec(0, 0)[d])) > 1e-6 {
			same = false
		}
	}
	if same {
		t.Fatal("ALiBi bias had no effect on token order")
	}
}

func TestLoadAcceptsBertPrefix(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny
	if _, err := Load(KindBert, mapSource(modeltest.Weights(s, "bert.", 3)), tinyBertConfig(s), cpu); err != nil {
		t.Fatalf("Load with bert. prefix: %v", err)
	}
}

func TestLoadFromSafetensors(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny
	path := filepath.Join(t.TempDir(), "model.safetensors")
	safetensorstest.WriteF32(t, path, modeltest.Weights(s, "", 4))
	f, err := safetensors.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	m, err := Load(KindBert, SafetensorsSource{File: f}, tinyBertConfig(s), cpu)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := m.Forward(mustIDs(t, []int{1, 2, 3}))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	assertFinite(t, out)
}

func TestLoadWeightErrors(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny

	weights := modeltest.Weights(s, "", 5)
	delete(weights, "encoder.layer.1.output.dense.weight")
	_, err := Load(KindBert, mapSource(weights), tinyBertConfig(s), cpu)
	var wle *WeightLoadError
	if !errors.As(err, &wle) {
		t.Fatalf("expected WeightLoadError, got %v", err)
	}
	if wle.Tensor != "encoder.layer.1.output.dense.weight" || !errors.Is(err, safetensors.ErrTensorNotFound) {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := tinyBertConfig(s)
	cfg.HiddenSize = 16
	_, err = Load(KindBert, mapSource(modeltest.Weights(s, "", 5)), cfg, cpu)
	if !errors.As(err, &wle) {
		t.Fatalf("expected WeightLoadError for shape mismatch, got %v", err)
	}
	if wle.Got == nil || wle.Want[1] != 16 {
		t.Fatalf("unexpected shapes: want %v got %v", wle.Want, wle.Got)
	}

	if _, err := Load(KindJinaBert, mapSource(weights), tinyBertConfig(s), cpu); err == nil {
		t.Fatal("expected error for config of the wrong kind")
	}
}

func TestForwardRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny
	m, err := Load(KindBert, mapSource(modeltest.Weights(s, "", 6)), tinyBertConfig(s), cpu)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := m.Forward(mustIDs(t, []int{1, s.Vocab})); err == nil {
		t.Fatal("expected error for id outside vocab")
	}
	long := make([]int, s.MaxPos+1)
	if _, err := m.Forward(mustIDs(t, long)); err == nil {
		t.Fatal("expected error for sequence longer than max positions")
	}
	if _, err := m.Forward(tensor.IDs{}); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestEmptyModelsYieldZeros(t *testing.T) {
	t.Parallel()
	for _, kind := range Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()
			m, err := Empty(kind, device.Device{Name: device.CPU, Workers: 4})
			if err != nil {
				t.Fatalf("Empty: %v", err)
			}
			if m.HiddenSize() != 768 {
				t.Fatalf("HiddenSize = %d", m.HiddenSize())
			}
			out, err := m.Forward(mustIDs(t, []int{101, 2000, 102}))
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			for i, v := range out.Data {
				if v != 0 {
					t.Fatalf("out[%d] = %v, want 0", i, v)
				}
			}
		})
	}
}

func TestEmptySharesBuffer(t *testing.T) {
	t.Parallel()
	s := modeltest.Tiny
	m, err := EmptyWithConfig(KindBert, tinyBertConfig(s), cpu)
	if err != nil {
		t.Fatalf("EmptyWithConfig: %v", err)
	}
	b := m.(*Bert)
	if &b.word.Data[0] != &b.layers[0].attn.query.w.Data[0] {
		t.Fatal("zero weights should share one backing buffer")
	}
}
