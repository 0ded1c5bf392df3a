package embed

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/model"
	"github.com/samcharles93/glow/internal/tensor"
	"github.com/samcharles93/glow/internal/tokenizer"
	"github.com/samcharles93/glow/internal/tokenizer/tokenizertest"
)

// fakeModel emits hidden[b][s][d] = id + d, or a fixed error or panic.
type fakeModel struct {
	hidden int
	calls  int
	zero   bool
	err    error
	panic  bool
}

func (f *fakeModel) HiddenSize() int { return f.hidden }

func (f *fakeModel) Forward(ids tensor.IDs) (*tensor.Tensor3, error) {
	f.calls++
	if f.panic {
		panic("index out of range")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := tensor.NewTensor3(ids.Rows, ids.Cols, f.hidden)
	if f.zero {
		return out, nil
	}
	for b := 0; b < ids.Rows; b++ {
		for s := 0; s < ids.Cols; s++ {
			for d, v := 0, out.Vec(b, s); d < f.hidden; d++ {
				v[d] = float32(ids.Data[b*ids.Cols+s] + d)
			}
		}
	}
	return out, nil
}

type fakeTokenizer struct {
	encs  []tokenizer.Encoding
	err   error
	panic bool
}

func (f fakeTokenizer) EncodeBatch([]string) ([]tokenizer.Encoding, error) {
	if f.panic {
		panic("bad utf-8")
	}
	return f.encs, f.err
}

func fixtureTokenizer(t *testing.T) *tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.LoadBytes(tokenizertest.JSON())
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	return tok
}

func TestEncodeUsageCountsSequences(t *testing.T) {
	t.Parallel()
	m := &fakeModel{hidden: 4}
	out, usage, err := Encode(m, fixtureTokenizer(t), []string{"cat", "dog"}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 2 || len(out[0]) != 4 {
		t.Fatalf("got %d vectors of %d", len(out), len(out[0]))
	}
	// [CLS] word [SEP] gives a padded length of 3.
	if usage.PromptTokens != 2 || usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v, want {2 5}", usage)
	}
}

func TestEncodeMeanIncludesPadding(t *testing.T) {
	t.Parallel()
	m := &fakeModel{hidden: 2}
	// "cat" -> [2 5 3 0 0], "the dog sat" -> [2 4 6 7 3]
	out, usage, err := Encode(m, fixtureTokenizer(t), []string{"cat", "the dog sat"}, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want0 := []float32{(2 + 5 + 3 + 0 + 0) / 5.0, (3 + 6 + 4 + 1 + 1) / 5.0}
	for d, w := range want0 {
		if math.Abs(float64(out[0][d]-w)) > 1e-6 {
			t.Fatalf("out[0][%d] = %v, want %v", d, out[0][d], w)
		}
	}
	want1 := float32(2+4+6+7+3) / 5
	if math.Abs(float64(out[1][0]-want1)) > 1e-6 {
		t.Fatalf("out[1][0] = %v, want %v", out[1][0], want1)
	}
	if usage.TotalTokens != 2+5 {
		t.Fatalf("TotalTokens = %d, want 7", usage.TotalTokens)
	}
}

func TestEncodeNormalize(t *testing.T) {
	t.Parallel()
	m := &fakeModel{hidden: 8}
	out, _, err := Encode(m, fixtureTokenizer(t), []string{"hello world", "cat", "un"}, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d vectors", len(out))
	}
	for i, v := range out {
		if n := tensor.L2Norm(v); math.Abs(float64(n)-1) > 1e-5 {
			t.Fatalf("vector %d norm = %v", i, n)
		}
	}
}

func TestEncodeZeroNormPassesThrough(t *testing.T) {
	t.Parallel()
	m := &fakeModel{hidden: 4, zero: true}
	out, _, err := Encode(m, fixtureTokenizer(t), []string{"cat"}, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for d, v := range out[0] {
		if v != 0 {
			t.Fatalf("out[0][%d] = %v, want 0", d, v)
		}
	}
}

func TestEncodeEmptyInput(t *testing.T) {
	t.Parallel()
	m := &fakeModel{hidden: 4}
	out, usage, err := Encode(m, fixtureTokenizer(t), nil, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 0 || usage != (Usage{}) {
		t.Fatalf("got %v, %+v", out, usage)
	}
	if m.calls != 0 {
		t.Fatalf("model called %d times", m.calls)
	}
}

func TestEncodeTokenizationErrors(t *testing.T) {
	t.Parallel()
	m := &fakeModel{hidden: 4}
	for _, tok := range []fakeTokenizer{
		{err: errors.New("boom")},
		{panic: true},
		{encs: []tokenizer.Encoding{{IDs: []int{1}}}},
	} {
		_, _, err := Encode(m, tok, []string{"a", "b"}, false)
		var te *TokenizationError
		if !errors.As(err, &te) {
			t.Fatalf("expected TokenizationError, got %v", err)
		}
	}
	if m.calls != 0 {
		t.Fatalf("model called after tokenization failure")
	}
}

func TestEncodeComputeErrors(t *testing.T) {
	t.Parallel()
	tok := fixtureTokenizer(t)
	sentinel := errors.New("device lost")

	_, _, err := Encode(&fakeModel{hidden: 4, err: sentinel}, tok, []string{"cat"}, false)
	var ce *ComputeError
	if !errors.As(err, &ce) || !errors.Is(err, sentinel) {
		t.Fatalf("expected ComputeError wrapping sentinel, got %v", err)
	}

	_, _, err = Encode(&fakeModel{hidden: 4, panic: true}, tok, []string{"cat"}, false)
	if !errors.As(err, &ce) {
		t.Fatalf("expected ComputeError from panic, got %v", err)
	}

	ragged := fakeTokenizer{encs: []tokenizer.Encoding{{IDs: []int{2, 3}}, {IDs: []int{2, 5, 3}}}}
	_, _, err = Encode(&fakeModel{hidden: 4}, ragged, []string{"a", "b"}, false)
	if !errors.As(err, &ce) {
		t.Fatalf("expected ComputeError for ragged ids, got %v", err)
	}
}

func TestEncodeEmptyModel(t *testing.T) {
	t.Parallel()
	cfg := &model.BertConfig{
		VocabSize: 32, HiddenSize: 8, NumHiddenLayers: 1, NumAttentionHeads: 2,
		IntermediateSize: 16, MaxPositionEmbeddings: 16, TypeVocabSize: 2, LayerNormEps: 1e-12,
	}
	m, err := model.EmptyWithConfig(model.KindBert, cfg, device.Device{Name: device.CPU, Workers: 1})
	if err != nil {
		t.Fatalf("EmptyWithConfig: %v", err)
	}
	out, _, err := Encode(m, fixtureTokenizer(t), []string{"the cat sat", "dog"}, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(out) != 2 || len(out[1]) != 8 {
		t.Fatalf("shape = %d x %d", len(out), len(out[1]))
	}
	if tensor.HasNaN(out[0]) || tensor.HasNaN(out[1]) {
		t.Fatal("zero model produced non-finite values")
	}
}

func TestL2Normalize(t *testing.T) {
	t.Parallel()
	v := []float32{3, 4}
	L2Normalize(v)
	if v[0] != 0.6 || v[1] != 0.8 {
		t.Fatalf("L2Normalize = %v", v)
	}
}
