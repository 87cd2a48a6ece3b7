// Package model defines the capability interfaces through which the
// training loop consumes the generator, discriminator, embedding and pitch
// models, plus compact reference implementations of each. The training
// orchestration depends only on the interfaces.
package model

import (
	"encoding/gob"
	"fmt"
	"os"
)

// State is an opaque serialized parameter set: name to flat value vector.
type State map[string][]float64

// Parameter is one named weight vector with its accumulated gradient.
type Parameter struct {
	Name  string
	Value []float64
	Grad  []float64
}

// Batch is one collated training batch. Leading dimension is the batch
// item; feature rows are padded to the longest item.
type Batch struct {
	Phone        [][][]float64 // content embedding frames (b, t, d)
	PhoneLengths []int
	Pitch        [][]int64   // coarse pitch bins (b, t)
	PitchF       [][]float64 // continuous pitch in Hz (b, t)
	Wave         [][]float64 // ground-truth waveform (b, samples)
	WaveLengths  []int
	SID          []int
}

// GenOutput is the generator forward result: generated waveform slices
// aligned against the ground truth by SliceIDs, plus the latent tensors the
// KL term is computed over.
type GenOutput struct {
	Waveform [][]float64
	SliceIDs []int // frame offset of each generated slice
	Latent   Latent
}

type Latent struct {
	ZP    [][]float64
	LogsQ [][]float64
	MP    [][]float64
	LogsP [][]float64
	Mask  [][]float64
}

// DiscOutput carries per-scale discriminator scores and the intermediate
// feature maps used by the feature-matching loss.
type DiscOutput struct {
	ScoresReal [][]float64
	ScoresGen  [][]float64
	FmapReal   [][][]float64
	FmapGen    [][][]float64
}

// Module is the state portion of the capability interface shared by the
// generator and discriminator.
type Module interface {
	StateDict() State
	LoadStateDict(State) error
	Parameters() []*Parameter
	ZeroGrad()
}

type Generator interface {
	Module
	Forward(b *Batch) (*GenOutput, error)
	// Backward accumulates gradients for the last Forward, scaled by the
	// scalar loss.
	Backward(loss float64)
	// Infer renders a full-length waveform for the batch's first item.
	Infer(b *Batch) ([]float64, error)
}

type Discriminator interface {
	Module
	Forward(real, generated [][]float64) (*DiscOutput, error)
	Backward(loss float64)
}

// EmbeddingModel produces per-frame hidden representations from a 16 kHz
// waveform.
type EmbeddingModel interface {
	Infer(samples []float64) ([][]float64, error)
}

// PitchPredictor is the neural pitch estimation capability. Unvoiced frames
// are reported as zero.
type PitchPredictor interface {
	Infer(samples []float64, sampleRate, hopLength int) []float64
}

// Shapes returns the name-to-length view of a state used for architecture
// compatibility checks.
func (s State) Shapes() map[string]int {
	shapes := make(map[string]int, len(s))
	for name, vals := range s {
		shapes[name] = len(vals)
	}
	return shapes
}

// CompatibleShapes verifies that a saved state matches a module's declared
// parameter shapes. This runs before any deserialization into the module.
func CompatibleShapes(m Module, s State) error {
	params := m.Parameters()
	if len(params) != len(s) {
		return fmt.Errorf("parameter count mismatch: model has %d, state has %d", len(params), len(s))
	}
	for _, p := range params {
		vals, ok := s[p.Name]
		if !ok {
			return fmt.Errorf("state is missing parameter %q", p.Name)
		}
		if len(vals) != len(p.Value) {
			return fmt.Errorf("parameter %q shape mismatch: model %d, state %d", p.Name, len(p.Value), len(vals))
		}
	}
	return nil
}

// SaveState writes a state blob to path (gob encoded).
func SaveState(path string, s State) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadState reads a state blob from path.
func LoadState(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s State
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	return s, nil
}
