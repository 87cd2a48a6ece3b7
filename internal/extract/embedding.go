package extract

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/npy"
)

// EmbeddingExtractor runs the content encoder over utterances. The model is
// loaded once and shared by every worker goroutine in the process.
type EmbeddingExtractor struct {
	model  model.EmbeddingModel
	logger *slog.Logger
}

func NewEmbeddingExtractor(name, customPath string, dim int, logger *slog.Logger) (*EmbeddingExtractor, string, error) {
	m, hash, err := model.LoadEmbedding(name, customPath, dim)
	if err != nil {
		return nil, "", err
	}
	return &EmbeddingExtractor{model: m, logger: logger}, hash, nil
}

// ProcessItem computes and persists the embedding matrix for one utterance.
// A non-finite output is logged and skipped without writing, so the item
// stays out of the manifest instead of poisoning training.
func (e *EmbeddingExtractor) ProcessItem(item WorkItem) error {
	samples, _, err := audio.ReadWAVFile(item.WavPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", item.WavPath, err)
	}
	out, err := e.model.Infer(samples)
	if err != nil {
		return fmt.Errorf("embed %s: %w", item.WavPath, err)
	}
	for _, frame := range out {
		for _, v := range frame {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				e.logger.Warn("embedding contains non-finite values, skipping",
					"source", item.WavPath)
				return nil
			}
		}
	}
	if err := npy.SaveFloat2D(item.EmbeddingPath, out); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}
