package tensor

import (
	"fmt"
	"math/rand"
)

// Mat is a dense row-major float32 matrix.
//
// R and C are the number of rows and columns. Stride is the number of elements
// between the starts of two consecutive rows; for matrices built here it always
// equals C. Data may alias read-only memory (for example a mapped weight file),
// so callers must not write to weight matrices.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Stride: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data without copying. len(data) must be r*c.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, errNegativeDim
	}
	if r*c != len(data) {
		return Mat{}, fmt.Errorf("%w: want %dx%d=%d elements, got %d", errDataSize, r, c, r*c, len(data))
	}
	return Mat{R: r, C: c, Stride: c, Data: data}, nil
}

// Row returns a view of the i-th row.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// FillRand fills the matrix with reproducible values in (-0.01, 0.01).
func FillRand(m *Mat, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * 0.02
	}
}

var (
	errNegativeDim = fmtError("negative dimension for matrix")
	errDataSize    = fmtError("data length mismatch")
	errShape       = fmtError("shape mismatch")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
