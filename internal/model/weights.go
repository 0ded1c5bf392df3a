package model

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/glow/internal/safetensors"
	"github.com/samcharles93/glow/internal/tensor"
)

// WeightSource provides named float32 tensors. A missing tensor must be
// reported with an error wrapping safetensors.ErrTensorNotFound.
type WeightSource interface {
	TensorF32(name string) ([]float32, []int, error)
}

// SafetensorsSource adapts a safetensors file to a WeightSource.
type SafetensorsSource struct {
	File *safetensors.File
}

func (s SafetensorsSource) TensorF32(name string) ([]float32, []int, error) {
	data, info, err := s.File.TensorF32(name)
	if err != nil {
		return nil, nil, err
	}
	return data, info.Shape, nil
}

// WeightLoadError reports a tensor that is missing or has the wrong shape.
type WeightLoadError struct {
	Tensor string
	Want   []int
	Got    []int
	Err    error
}

func (e *WeightLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load weight %s: %v", e.Tensor, e.Err)
	}
	return fmt.Sprintf("load weight %s: shape %v, want %v", e.Tensor, e.Got, e.Want)
}

func (e *WeightLoadError) Unwrap() error { return e.Err }

// weightReader resolves tensor names against a source, trying the bare name
// first and then the "bert." prefixed form used by some exports. With a zero
// buffer set, every tensor is a view over it.
type weightReader struct {
	src  WeightSource
	zero []float32
}

func (r *weightReader) read(name string, want ...int) ([]float32, error) {
	size := 1
	for _, d := range want {
		size *= d
	}
	if r.zero != nil {
		if size > len(r.zero) {
			return nil, &WeightLoadError{Tensor: name, Want: want, Err: fmt.Errorf("zero buffer holds %d values, need %d", len(r.zero), size)}
		}
		return r.zero[:size:size], nil
	}

	data, shape, err := r.src.TensorF32(name)
	if errors.Is(err, safetensors.ErrTensorNotFound) {
		data, shape, err = r.src.TensorF32("bert." + name)
	}
	if err != nil {
		return nil, &WeightLoadError{Tensor: name, Want: want, Err: err}
	}
	if !slices.Equal(shape, want) || len(data) != size {
		return nil, &WeightLoadError{Tensor: name, Want: want, Got: shape}
	}
	return data, nil
}

func (r *weightReader) mat(name string, rows, cols int) (tensor.Mat, error) {
	data, err := r.read(name, rows, cols)
	if err != nil {
		return tensor.Mat{}, err
	}
	return tensor.NewMatFromData(rows, cols, data)
}

func (r *weightReader) linear(prefix string, out, in int, bias bool) (linear, error) {
	w, err := r.mat(prefix+".weight", out, in)
	if err != nil {
		return linear{}, err
	}
	l := linear{w: w}
	if bias {
		if l.b, err = r.read(prefix+".bias", out); err != nil {
			return linear{}, err
		}
	}
	return l, nil
}

func (r *weightReader) layerNorm(prefix string, n int) (layerNorm, error) {
	w, err := r.read(prefix+".weight", n)
	if err != nil {
		return layerNorm{}, err
	}
	b, err := r.read(prefix+".bias", n)
	if err != nil {
		return layerNorm{}, err
	}
	return layerNorm{weight: w, bias: b}, nil
}
