package npy

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestRoundTrip_Float1D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f0.npy")
	data := []float64{110.5, 0, 220.25, 440}
	if err := SaveFloat1D(path, data); err != nil {
		t.Fatal(err)
	}

	a, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.DType != "<f4" || len(a.Shape) != 1 || a.Shape[0] != 4 {
		t.Fatalf("unexpected header: dtype=%s shape=%v", a.DType, a.Shape)
	}
	for i, want := range data {
		if float64(a.Float32[i]) != want {
			t.Errorf("value %d: got %f, want %f", i, a.Float32[i], want)
		}
	}
}

func TestRoundTrip_Float2D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emb.npy")
	rows := [][]float64{{1, 2, 3}, {4, 5, 6}}
	if err := SaveFloat2D(path, rows); err != nil {
		t.Fatal(err)
	}

	a, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Shape) != 2 || a.Shape[0] != 2 || a.Shape[1] != 3 {
		t.Fatalf("unexpected shape %v", a.Shape)
	}
	if a.Rows() != 2 {
		t.Errorf("expected 2 rows, got %d", a.Rows())
	}
	if a.Float32[4] != 5 {
		t.Errorf("row-major order broken: %v", a.Float32)
	}
}

func TestRoundTrip_Int1D(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coarse.npy")
	data := []int64{1, 254, 128}
	if err := SaveInt1D(path, data); err != nil {
		t.Fatal(err)
	}

	a, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.DType != "<i8" {
		t.Fatalf("unexpected dtype %s", a.DType)
	}
	for i, want := range data {
		if a.Int64[i] != want {
			t.Errorf("value %d: got %d, want %d", i, a.Int64[i], want)
		}
	}
}

func TestHeader_Alignment(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, &Array{DType: "<f4", Shape: []int{1}, Float32: []float32{0}}); err != nil {
		t.Fatal(err)
	}
	// data must start at a 64-byte boundary
	if (buf.Len()-4)%64 != 0 {
		t.Errorf("data not 64-byte aligned: total %d", buf.Len())
	}
}

func TestRead_RejectsGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not an npy file at all")))
	if err == nil {
		t.Fatal("expected error for non-npy input")
	}
}
