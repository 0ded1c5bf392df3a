// Package safetensorstest writes small safetensors fixtures for tests.
package safetensorstest

import (
	"encoding/binary"
	"math"
	"os"
	"sort"
	"testing"

	"github.com/goccy/go-json"
)

// Tensor is an F32 fixture tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

type header struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// WriteF32 writes tensors to path as F32 in name order.
func WriteF32(t testing.TB, path string, tensors map[string]Tensor) {
	t.Helper()

	names := make([]string, 0, len(tensors))
	for n := range tensors {
		names = append(names, n)
	}
	sort.Strings(names)

	hdr := make(map[string]any, len(tensors)+1)
	hdr["__metadata__"] = map[string]string{"format": "pt"}
	var off int64
	for _, n := range names {
		size := int64(len(tensors[n].Data) * 4)
		hdr[n] = header{DType: "F32", Shape: tensors[n].Shape, DataOffsets: []int64{off, off + size}}
		off += size
	}
	hb, err := json.Marshal(hdr)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	// Pad the header so tensor data starts 8-byte aligned, as real writers do.
	for (8+len(hb))%8 != 0 {
		hb = append(hb, ' ')
	}

	buf := make([]byte, 8, 8+len(hb)+int(off))
	binary.LittleEndian.PutUint64(buf, uint64(len(hb)))
	buf = append(buf, hb...)
	for _, n := range names {
		for _, v := range tensors[n].Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
