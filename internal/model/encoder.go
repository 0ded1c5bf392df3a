package model

import (
	"fmt"
	"math"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/tensor"
)

type linear struct {
	w tensor.Mat
	b []float32
}

func (l *linear) forward(dst, x *tensor.Mat, workers int) error {
	return tensor.Linear(dst, x, &l.w, l.b, workers)
}

type layerNorm struct {
	weight, bias []float32
}

// residualNorm sets x = LayerNorm(x + delta) row by row.
func (n *layerNorm) residualNorm(x, delta *tensor.Mat, eps float32) {
	for r := 0; r < x.R; r++ {
		d := delta.Row(r)
		tensor.Add(d, x.Row(r))
		tensor.LayerNorm(x.Row(r), d, n.weight, n.bias, eps)
	}
}

// feedForward updates hidden states in place, including the residual and
// the closing layer norm.
type feedForward interface {
	forward(x *tensor.Mat, eps float32, workers int) error
}

type geluMLP struct {
	intermediate linear
	output       linear
	norm         layerNorm
	size         int
}

func (m *geluMLP) forward(x *tensor.Mat, eps float32, workers int) error {
	h := tensor.NewMat(x.R, m.size)
	if err := m.intermediate.forward(&h, x, workers); err != nil {
		return fmt.Errorf("intermediate: %w", err)
	}
	tensor.GeluInPlace(h.Data)
	out := tensor.NewMat(x.R, x.C)
	if err := m.output.forward(&out, &h, workers); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	m.norm.residualNorm(x, &out, eps)
	return nil
}

// gatedMLP projects to [gated | non_gated] halves and multiplies
// gelu(gated) by non_gated before projecting back.
type gatedMLP struct {
	gated linear
	wo    linear
	norm  layerNorm
	size  int
}

func (m *gatedMLP) forward(x *tensor.Mat, eps float32, workers int) error {
	h := tensor.NewMat(x.R, 2*m.size)
	if err := m.gated.forward(&h, x, workers); err != nil {
		return fmt.Errorf("gated_layers: %w", err)
	}
	act := tensor.NewMat(x.R, m.size)
	for r := 0; r < x.R; r++ {
		row := h.Row(r)
		gated, nonGated := row[:m.size], row[m.size:]
		dst := act.Row(r)
		for i := range dst {
			dst[i] = tensor.Gelu(gated[i]) * nonGated[i]
		}
	}
	out := tensor.NewMat(x.R, x.C)
	if err := m.wo.forward(&out, &act, workers); err != nil {
		return fmt.Errorf("wo: %w", err)
	}
	m.norm.residualNorm(x, &out, eps)
	return nil
}

type attention struct {
	query, key, value linear
	out               linear
	norm              layerNorm
}

type layer struct {
	attn attention
	ffn  feedForward
}

// encoder is the post-LN transformer stack shared by both architectures.
// It applies no attention mask: padded positions attend and are attended
// to like any other token.
type encoder struct {
	hidden, heads int
	vocab, maxPos int
	eps           float32
	workers       int

	word      tensor.Mat
	position  *tensor.Mat // nil with ALiBi
	tokenType tensor.Mat
	embNorm   layerNorm
	layers    []layer
	slopes    []float32 // ALiBi slope per head, nil without ALiBi
}

func (e *encoder) HiddenSize() int { return e.hidden }

func (e *encoder) Forward(ids tensor.IDs) (*tensor.Tensor3, error) {
	if ids.Rows <= 0 || ids.Cols <= 0 {
		return nil, fmt.Errorf("empty input ids [%d, %d]", ids.Rows, ids.Cols)
	}
	if len(ids.Data) != ids.Rows*ids.Cols {
		return nil, fmt.Errorf("input ids hold %d values, want %d", len(ids.Data), ids.Rows*ids.Cols)
	}
	if ids.Cols > e.maxPos {
		return nil, fmt.Errorf("sequence length %d exceeds max_position_embeddings %d", ids.Cols, e.maxPos)
	}
	for i, id := range ids.Data {
		if id < 0 || id >= e.vocab {
			return nil, fmt.Errorf("token id %d at [%d, %d] outside vocab of %d", id, i/ids.Cols, i%ids.Cols, e.vocab)
		}
	}

	out := tensor.NewTensor3(ids.Rows, ids.Cols, e.hidden)
	typeIDs := ids.ZerosLike()
	for b := 0; b < ids.Rows; b++ {
		for s := 0; s < ids.Cols; s++ {
			v := out.Vec(b, s)
			copy(v, e.word.Row(ids.Data[b*ids.Cols+s]))
			tensor.Add(v, e.tokenType.Row(typeIDs.Data[b*ids.Cols+s]))
			if e.position != nil {
				tensor.Add(v, e.position.Row(s))
			}
			tensor.LayerNorm(v, v, e.embNorm.weight, e.embNorm.bias, e.eps)
		}
	}

	x := out.Flat()
	for i := range e.layers {
		if err := e.attend(&e.layers[i].attn, &x, ids.Rows, ids.Cols); err != nil {
			return nil, fmt.Errorf("layer %d attention: %w", i, err)
		}
		if err := e.layers[i].ffn.forward(&x, e.eps, e.workers); err != nil {
			return nil, fmt.Errorf("layer %d mlp: %w", i, err)
		}
	}
	return out, nil
}

// attend runs self-attention over x ([batch*seq, hidden]) in place.
func (e *encoder) attend(a *attention, x *tensor.Mat, batch, seq int) error {
	q := tensor.NewMat(x.R, e.hidden)
	k := tensor.NewMat(x.R, e.hidden)
	v := tensor.NewMat(x.R, e.hidden)
	for _, p := range []struct {
		l   *linear
		dst *tensor.Mat
	}{{&a.query, &q}, {&a.key, &k}, {&a.value, &v}} {
		if err := p.l.forward(p.dst, x, e.workers); err != nil {
			return err
		}
	}

	headDim := e.hidden / e.heads
	scale := float32(1 / math.Sqrt(float64(headDim)))
	ctx := tensor.NewMat(x.R, e.hidden)

	// One unit of work is one query row of one head.
	tensor.ParallelFor(batch*e.heads*seq, e.workers, func(lo, hi int) {
		scores := make([]float32, seq)
		for u := lo; u < hi; u++ {
			b := u / (e.heads * seq)
			h := (u / seq) % e.heads
			i := u % seq
			off := h * headDim
			qi := q.Row(b*seq + i)[off : off+headDim]
			for j := 0; j < seq; j++ {
				s := tensor.Dot(qi, k.Row(b*seq + j)[off:off+headDim]) * scale
				if e.slopes != nil {
					s += e.slopes[h] * float32(absInt(j-i))
				}
				scores[j] = s
			}
			tensor.Softmax(scores)
			dst := ctx.Row(b*seq + i)[off : off+headDim]
			for j, p := range scores {
				vj := v.Row(b*seq + j)[off : off+headDim]
				for d := range dst {
					dst[d] += p * vj[d]
				}
			}
		}
	})

	proj := tensor.NewMat(x.R, e.hidden)
	if err := a.out.forward(&proj, &ctx, e.workers); err != nil {
		return err
	}
	a.norm.residualNorm(x, &proj, e.eps)
	return nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// alibiSlopes returns the per-head ALiBi slopes. For a head count that is
// not a power of two, the odd-indexed slopes of the next power of two come
// first, followed by the even-indexed ones.
func alibiSlopes(heads int) []float32 {
	n2 := 1
	for n2 < heads {
		n2 *= 2
	}
	all := make([]float32, n2)
	for v := 1; v <= n2; v++ {
		all[v-1] = float32(-1 / math.Pow(2, float64(v*8)/float64(n2)))
	}
	if n2 == heads {
		return all
	}
	out := make([]float32, 0, heads)
	for i := 1; i < n2 && len(out) < heads; i += 2 {
		out = append(out, all[i])
	}
	for i := 0; i < n2 && len(out) < heads; i += 2 {
		out = append(out, all[i])
	}
	return out
}

func newEncoder(cfg *BertConfig, dev device.Device) encoder {
	return encoder{
		hidden:  cfg.HiddenSize,
		heads:   cfg.NumAttentionHeads,
		vocab:   cfg.VocabSize,
		maxPos:  cfg.MaxPositionEmbeddings,
		eps:     cfg.eps(),
		workers: dev.Workers,
	}
}

func (e *encoder) loadEmbeddings(r *weightReader, names archNames, cfg *BertConfig) error {
	var err error
	if e.word, err = r.mat(names.wordEmbeddings, cfg.VocabSize, cfg.HiddenSize); err != nil {
		return err
	}
	if names.positionEmbeddings != "" {
		pos, err := r.mat(names.positionEmbeddings, cfg.MaxPositionEmbeddings, cfg.HiddenSize)
		if err != nil {
			return err
		}
		e.position = &pos
	}
	if e.tokenType, err = r.mat(names.tokenTypeEmbeddings, cfg.TypeVocabSize, cfg.HiddenSize); err != nil {
		return err
	}
	e.embNorm, err = r.layerNorm(names.embeddingsNorm, cfg.HiddenSize)
	return err
}

func (e *encoder) loadAttention(r *weightReader, names archNames, i int) (attention, error) {
	h := e.hidden
	var a attention
	var err error
	if a.query, err = r.linear(names.query(i), h, h, true); err != nil {
		return a, err
	}
	if a.key, err = r.linear(names.key(i), h, h, true); err != nil {
		return a, err
	}
	if a.value, err = r.linear(names.value(i), h, h, true); err != nil {
		return a, err
	}
	if a.out, err = r.linear(names.attnOut(i), h, h, true); err != nil {
		return a, err
	}
	a.norm, err = r.layerNorm(names.attnNorm(i), h)
	return a, err
}
