// Package npy reads and writes the subset of the NPY format used for
// feature artifacts: little-endian float32 and int64 arrays of one or two
// dimensions, C order. Files are interchangeable with numpy.save/np.load.
package npy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var magic = []byte("\x93NUMPY")

var headerRegex = regexp.MustCompile(
	`'descr':\s*'([^']+)',\s*'fortran_order':\s*(False|True),\s*'shape':\s*\(([^)]*)\)`)

// Array is an in-memory NPY array. Exactly one of Float32 or Int64 is set,
// matching DType "<f4" or "<i8". Shape has one or two dimensions.
type Array struct {
	DType   string
	Shape   []int
	Float32 []float32
	Int64   []int64
}

func (a *Array) count() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Rows returns the leading dimension (frame count for 2-D arrays, length
// for 1-D arrays).
func (a *Array) Rows() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return a.Shape[0]
}

func writeHeader(w io.Writer, dtype string, shape []int) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", dtype, shapeStr)

	// Pad so that magic+version+len+header is a multiple of 64, newline last.
	total := len(magic) + 2 + 2 + len(header) + 1
	pad := (64 - total%64) % 64
	header += strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write(magic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	_, err := io.WriteString(w, header)
	return err
}

// Write encodes the array to w.
func Write(w io.Writer, a *Array) error {
	switch a.DType {
	case "<f4":
		if len(a.Float32) != a.count() {
			return fmt.Errorf("shape %v does not match %d float32 values", a.Shape, len(a.Float32))
		}
		if err := writeHeader(w, a.DType, a.Shape); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, a.Float32)
	case "<i8":
		if len(a.Int64) != a.count() {
			return fmt.Errorf("shape %v does not match %d int64 values", a.Shape, len(a.Int64))
		}
		if err := writeHeader(w, a.DType, a.Shape); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, a.Int64)
	default:
		return fmt.Errorf("unsupported dtype %q", a.DType)
	}
}

// Read decodes an array from r.
func Read(r io.Reader) (*Array, error) {
	head := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read npy magic: %w", err)
	}
	if string(head[:len(magic)]) != string(magic) {
		return nil, errors.New("not an npy file")
	}
	if head[len(magic)] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", head[len(magic)], head[len(magic)+1])
	}

	var headerLen uint16
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read npy header length: %w", err)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read npy header: %w", err)
	}

	m := headerRegex.FindSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("malformed npy header: %q", header)
	}
	dtype := string(m[1])
	if string(m[2]) != "False" {
		return nil, errors.New("fortran order arrays are not supported")
	}

	var shape []int
	for _, part := range strings.Split(string(m[3]), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("malformed npy shape: %w", err)
		}
		shape = append(shape, d)
	}
	if len(shape) == 0 || len(shape) > 2 {
		return nil, fmt.Errorf("unsupported npy rank %d", len(shape))
	}

	a := &Array{DType: dtype, Shape: shape}
	switch dtype {
	case "<f4":
		a.Float32 = make([]float32, a.count())
		if err := binary.Read(r, binary.LittleEndian, a.Float32); err != nil {
			return nil, fmt.Errorf("read npy float32 data: %w", err)
		}
	case "<i8":
		a.Int64 = make([]int64, a.count())
		if err := binary.Read(r, binary.LittleEndian, a.Int64); err != nil {
			return nil, fmt.Errorf("read npy int64 data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
	return a, nil
}

// Save writes an array to path via a temp file and rename, so a crashed
// extraction never leaves a truncated artifact behind.
func Save(path string, a *Array) error {
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	if err := Write(f, a); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}

// Load reads an array from path.
func Load(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// SaveFloat1D saves a 1-D float64 slice as <f4>.
func SaveFloat1D(path string, data []float64) error {
	f32 := make([]float32, len(data))
	for i, v := range data {
		f32[i] = float32(v)
	}
	return Save(path, &Array{DType: "<f4", Shape: []int{len(data)}, Float32: f32})
}

// SaveFloat2D saves a row-major 2-D float64 matrix as <f4>.
func SaveFloat2D(path string, rows [][]float64) error {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	f32 := make([]float32, 0, len(rows)*cols)
	for _, row := range rows {
		for _, v := range row {
			f32 = append(f32, float32(v))
		}
	}
	return Save(path, &Array{DType: "<f4", Shape: []int{len(rows), cols}, Float32: f32})
}

// SaveInt1D saves a 1-D int64 slice as <i8>.
func SaveInt1D(path string, data []int64) error {
	return Save(path, &Array{DType: "<i8", Shape: []int{len(data)}, Int64: data})
}
