// Package extract turns sliced audio into the per-utterance feature
// artifacts training consumes: a continuous pitch curve, its quantized
// counterpart and a content embedding matrix.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
)

// WorkItem is one utterance and the artifact paths derived from it. Identity
// is the source path; items are never mutated after indexing.
type WorkItem struct {
	WavPath         string
	CoarsePitchPath string
	FullPitchPath   string
	EmbeddingPath   string
}

// Name returns the utterance id, the source basename without extension.
func (w WorkItem) Name() string {
	base := filepath.Base(w.WavPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Index scans the 16 kHz sliced-audio folder and builds the work list in
// sorted order so every process sees the same sequence.
func Index(exp *experiment.Experiment, method, embedder string) ([]WorkItem, error) {
	entries, err := os.ReadDir(exp.SlicedAudio16kDir())
	if err != nil {
		return nil, fmt.Errorf("scan sliced audio: %w", err)
	}
	var items []WorkItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".wav")
		items = append(items, WorkItem{
			WavPath:         filepath.Join(exp.SlicedAudio16kDir(), entry.Name()),
			CoarsePitchPath: filepath.Join(exp.CoarsePitchDir(method), name+".npy"),
			FullPitchPath:   filepath.Join(exp.FullPitchDir(method), name+".npy"),
			EmbeddingPath:   filepath.Join(exp.EmbeddingDir(embedder), name+".npy"),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].WavPath < items[j].WavPath })
	return items, nil
}

// Shard selects every world-th item starting at rank, so shard sizes differ
// by at most one item.
func Shard(items []WorkItem, rank, world int) []WorkItem {
	if world <= 1 {
		return items
	}
	var out []WorkItem
	for i := rank; i < len(items); i += world {
		out = append(out, items[i])
	}
	return out
}

// Done reports whether every artifact for the item already exists, which
// lets a rerun skip completed work.
func (w WorkItem) Done() bool {
	for _, p := range []string{w.CoarsePitchPath, w.FullPitchPath, w.EmbeddingPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
