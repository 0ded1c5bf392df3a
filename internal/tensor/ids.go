package tensor

import "fmt"

// IDs is an integer matrix of token ids with shape [Rows, Cols].
type IDs struct {
	Rows, Cols int
	Data       []int
}

// StackIDs builds a [len(rows), len(rows[0])] matrix. Every row must have the
// same length.
func StackIDs(rows [][]int) (IDs, error) {
	if len(rows) == 0 {
		return IDs{}, nil
	}
	cols := len(rows[0])
	data := make([]int, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return IDs{}, fmt.Errorf("%w: row %d has %d ids, row 0 has %d", errShape, i, len(r), cols)
		}
		data = append(data, r...)
	}
	return IDs{Rows: len(rows), Cols: cols, Data: data}, nil
}

// Row returns the ids of row i.
func (t IDs) Row(i int) []int {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// ZerosLike returns a matrix of the same shape filled with zeros.
func (t IDs) ZerosLike() IDs {
	return IDs{Rows: t.Rows, Cols: t.Cols, Data: make([]int, len(t.Data))}
}

// Tensor3 is a dense [D0, D1, D2] float32 tensor, used for hidden states laid
// out as [batch, seq_len, hidden].
type Tensor3 struct {
	D0, D1, D2 int
	Data       []float32
}

// NewTensor3 allocates a zeroed tensor.
func NewTensor3(d0, d1, d2 int) *Tensor3 {
	return &Tensor3{D0: d0, D1: d1, D2: d2, Data: make([]float32, d0*d1*d2)}
}

// Dims returns the three dimensions.
func (t *Tensor3) Dims() (int, int, int) {
	return t.D0, t.D1, t.D2
}

// Vec returns the innermost vector at [i, j].
func (t *Tensor3) Vec(i, j int) []float32 {
	off := (i*t.D1 + j) * t.D2
	return t.Data[off : off+t.D2]
}

// Flat views the tensor as a [D0*D1, D2] matrix sharing storage.
func (t *Tensor3) Flat() Mat {
	return Mat{R: t.D0 * t.D1, C: t.D2, Stride: t.D2, Data: t.Data}
}
