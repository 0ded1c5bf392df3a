// Package embed turns sentences into pooled sentence embeddings.
package embed

import (
	"fmt"
	"math"

	"github.com/samcharles93/glow/internal/model"
	"github.com/samcharles93/glow/internal/tensor"
	"github.com/samcharles93/glow/internal/tokenizer"
)

// Tokenizer encodes a batch of texts padded to a common length.
type Tokenizer interface {
	EncodeBatch(texts []string) ([]tokenizer.Encoding, error)
}

// Usage is the token accounting reported with a batch. PromptTokens counts
// sequences, not tokens, and TotalTokens adds the padded length once;
// clients of the embeddings API rely on these figures as they are.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// TokenizationError wraps a tokenizer failure.
type TokenizationError struct {
	Err error
}

func (e *TokenizationError) Error() string { return "tokenize: " + e.Err.Error() }
func (e *TokenizationError) Unwrap() error { return e.Err }

// ComputeError wraps a failure while stacking, running or pooling.
type ComputeError struct {
	Op  string
	Err error
}

func (e *ComputeError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ComputeError) Unwrap() error { return e.Err }

// Encode embeds sentences in order, one vector of m.HiddenSize() values per
// sentence.
//
// Hidden states are averaged over every position including padding, so the
// embedding of a sentence depends on the longest sentence in its batch.
// With normalize set, each vector is scaled to unit L2 norm; a zero vector
// is returned unchanged.
func Encode(m model.Model, tok Tokenizer, sentences []string, normalize bool) ([][]float32, Usage, error) {
	if len(sentences) == 0 {
		return [][]float32{}, Usage{}, nil
	}

	encs, err := safeEncodeBatch(tok, sentences)
	if err != nil {
		return nil, Usage{}, &TokenizationError{Err: err}
	}
	if len(encs) != len(sentences) {
		return nil, Usage{}, &TokenizationError{Err: fmt.Errorf("got %d encodings for %d sentences", len(encs), len(sentences))}
	}

	rows := make([][]int, len(encs))
	for i, e := range encs {
		rows[i] = e.IDs
	}
	ids, err := tensor.StackIDs(rows)
	if err != nil {
		return nil, Usage{}, &ComputeError{Op: "stack token ids", Err: err}
	}

	hidden, err := safeForward(m, ids)
	if err != nil {
		return nil, Usage{}, &ComputeError{Op: "forward", Err: err}
	}
	batch, seqLen, dim := hidden.Dims()
	if batch != len(sentences) || seqLen != ids.Cols {
		return nil, Usage{}, &ComputeError{Op: "forward", Err: fmt.Errorf("output shape [%d, %d, %d], want [%d, %d, _]", batch, seqLen, dim, len(sentences), ids.Cols)}
	}

	out := make([][]float32, batch)
	for b := range out {
		v := meanPool(hidden, b)
		if tensor.HasNaN(v) {
			return nil, Usage{}, &ComputeError{Op: "pool", Err: fmt.Errorf("embedding %d contains NaN", b)}
		}
		if normalize {
			L2Normalize(v)
		}
		out[b] = v
	}

	prompt := len(encs)
	return out, Usage{PromptTokens: prompt, TotalTokens: prompt + seqLen}, nil
}

// meanPool averages row b of hidden over the sequence axis.
func meanPool(hidden *tensor.Tensor3, b int) []float32 {
	_, seqLen, dim := hidden.Dims()
	sum := make([]float64, dim)
	for s := 0; s < seqLen; s++ {
		for d, x := range hidden.Vec(b, s) {
			sum[d] += float64(x)
		}
	}
	v := make([]float32, dim)
	for d := range v {
		v[d] = float32(sum[d] / float64(seqLen))
	}
	return v
}

// L2Normalize scales v to unit length in place. A zero vector is left as is.
func L2Normalize(v []float32) {
	n := tensor.L2Norm(v)
	if n == 0 || math.IsNaN(float64(n)) {
		return
	}
	tensor.Scale(v, 1/n)
}

func safeEncodeBatch(tok Tokenizer, sentences []string) (encs []tokenizer.Encoding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in EncodeBatch: %v", rec)
		}
	}()
	return tok.EncodeBatch(sentences)
}

func safeForward(m model.Model, ids tensor.IDs) (out *tensor.Tensor3, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return m.Forward(ids)
}
