package device

import (
	"runtime"
	"sort"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"", Auto, false},
		{" CPU ", CPU, false},
		{"cuda", CUDA, false},
		{"auto", Auto, false},
		{"tpu", "", true},
	}
	for _, tc := range tests {
		got, err := Normalize(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("Normalize(%q) err=%v, want err=%v", tc.in, err, tc.err)
		}
		if got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	d, err := Open("auto", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.Name != CPU {
		t.Fatalf("auto should resolve to cpu, got %s", d.Name)
	}
	if d.Workers != runtime.GOMAXPROCS(0) {
		t.Fatalf("workers = %d, want GOMAXPROCS", d.Workers)
	}

	d, err = Open("cpu", 3)
	if err != nil || d.Workers != 3 {
		t.Fatalf("Open(cpu, 3) = %v, %v", d, err)
	}

	if _, err := Open("cuda", 0); err == nil {
		t.Fatal("expected cuda to be unavailable")
	}
}

func TestDefaultIsStable(t *testing.T) {
	t.Parallel()
	a, errA := Default()
	b, errB := Default()
	if a != b || errA != errB {
		t.Fatalf("Default changed between calls: %v/%v vs %v/%v", a, errA, b, errB)
	}
}

func TestFeatureStringSorted(t *testing.T) {
	t.Parallel()
	s := FeatureString()
	if s == "" {
		return
	}
	parts := strings.Split(s, ",")
	if !sort.StringsAreSorted(parts) {
		t.Fatalf("FeatureString() = %q is not sorted", s)
	}
	feats := Features()
	for _, p := range parts {
		if !feats[p] {
			t.Fatalf("%s listed but not reported", p)
		}
	}
}
