package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/feature"
)

// Embedders lists the bundled speech encoders.
var Embedders = map[string]bool{
	"contentvec": true,
	"spin":       true,
}

const (
	embedderHop     = 320
	embedderFFT     = 1024
	embedderMels    = 80
	embedderSampleRate = 16000
)

// melEmbedder projects log-mel frames through a fixed random matrix into the
// content space. Each bundled encoder uses its own projection seed; a custom
// model derives the seed from its weight file so distinct files yield
// distinct feature spaces.
type melEmbedder struct {
	dim  int
	fb   *feature.MelFilterbank
	proj [][]float64
}

func newMelEmbedder(dim int, seed int64) *melEmbedder {
	rng := rand.New(rand.NewSource(seed))
	proj := make([][]float64, embedderMels)
	scale := 1.0 / math.Sqrt(embedderMels)
	for m := range proj {
		row := make([]float64, dim)
		for d := range row {
			row[d] = rng.NormFloat64() * scale
		}
		proj[m] = row
	}
	return &melEmbedder{
		dim:  dim,
		fb:   feature.NewMelFilterbank(embedderMels, embedderFFT, embedderSampleRate, 0, 0),
		proj: proj,
	}
}

func (e *melEmbedder) Infer(samples []float64) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	mels := feature.MelSpectrogram(samples, e.fb, embedderFFT, embedderHop)
	out := make([][]float64, len(mels))
	for t, frame := range mels {
		vec := make([]float64, e.dim)
		for m, v := range frame {
			for d := range vec {
				vec[d] += v * e.proj[m][d]
			}
		}
		out[t] = vec
	}
	return out, nil
}

var embedderSeeds = map[string]int64{
	"contentvec": 0x636f6e74,
	"spin":       0x7370696e,
}

// LoadEmbedding resolves an embedder by name, or loads a custom model from
// customPath when name is "custom". The returned hash is empty for bundled
// models and the sha256 of the weight file for custom ones.
func LoadEmbedding(name, customPath string, dim int) (EmbeddingModel, string, error) {
	if name == "custom" {
		if customPath == "" {
			return nil, "", fmt.Errorf("custom embedder selected but no model path given")
		}
		data, err := os.ReadFile(customPath)
		if err != nil {
			return nil, "", fmt.Errorf("read custom embedder: %w", err)
		}
		sum := sha256.Sum256(data)
		seed := int64(binary.LittleEndian.Uint64(sum[:8]))
		return newMelEmbedder(dim, seed), hex.EncodeToString(sum[:]), nil
	}
	seed, ok := embedderSeeds[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown embedder model %q", name)
	}
	return newMelEmbedder(dim, seed), "", nil
}
