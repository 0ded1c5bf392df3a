package tensor

import (
	"fmt"
	"sync"
)

// Linear computes dst = x * w^T + bias, the layout used by HF checkpoints where
// w is stored as [out, in]. bias may be nil. dst must be [x.R, w.R].
//
// Work is split across output features so that each goroutine streams a
// contiguous block of weight rows.
func Linear(dst, x, w *Mat, bias []float32, workers int) error {
	if x.C != w.C {
		return fmt.Errorf("%w: linear input has %d features, weight expects %d", errShape, x.C, w.C)
	}
	if dst.R != x.R || dst.C != w.R {
		return fmt.Errorf("%w: linear output is %dx%d, want %dx%d", errShape, dst.R, dst.C, x.R, w.R)
	}
	if bias != nil && len(bias) != w.R {
		return fmt.Errorf("%w: bias has %d elements, want %d", errShape, len(bias), w.R)
	}
	ParallelFor(w.R, workers, func(lo, hi int) {
		for t := 0; t < x.R; t++ {
			xr := x.Row(t)
			out := dst.Row(t)
			for o := lo; o < hi; o++ {
				v := Dot(xr, w.Row(o))
				if bias != nil {
					v += bias[o]
				}
				out[o] = v
			}
		}
	})
	return nil
}

// minChunk keeps tiny loops serial; goroutine start-up dominates below it.
const minChunk = 16

// ParallelFor splits [0, n) into at most workers contiguous ranges and runs fn
// on each concurrently, returning when all ranges are done.
func ParallelFor(n, workers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	if workers > n/minChunk {
		workers = n / minChunk
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
