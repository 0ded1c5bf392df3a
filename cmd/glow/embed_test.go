package main

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/glow/internal/model/modeltest"
)

func TestReadLines(t *testing.T) {
	t.Parallel()
	got, err := readLines(strings.NewReader("the cat\n\n  hello world  \n"))
	if err != nil {
		t.Fatalf("readLines: %v", err)
	}
	if want := []string{"the cat", "hello world"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("readLines = %q, want %q", got, want)
	}
}

func TestEmbedCommand(t *testing.T) {
	t.Setenv(envConfig, filepath.Join(t.TempDir(), "none.yaml"))
	dir := modeltest.WriteDir(t, modeltest.Tiny)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	args := []string{"glow", "--log-level", "error", "embed", "--model", dir, "--device", "cpu", "the cat sat", "dog"}
	if err := app.Run(context.Background(), args); err != nil {
		t.Fatalf("run: %v", err)
	}

	var got embedOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v (%s)", err, out.String())
	}
	if got.Model != dir || len(got.Embeddings) != 2 {
		t.Fatalf("unexpected output %+v", got)
	}
	for i, v := range got.Embeddings {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-4 {
			t.Fatalf("embedding %d not normalized: %v", i, math.Sqrt(sum))
		}
	}
	if got.Usage.PromptTokens != 2 {
		t.Fatalf("usage = %+v", got.Usage)
	}
}
