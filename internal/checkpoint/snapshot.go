package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
)

// OvertrainInfo is embedded in snapshots so deployment tooling can show how
// the run ended.
type OvertrainInfo struct {
	BestLoss  float64
	BestEpoch int
	Stopped   bool
}

// Snapshot is the deployable generator: weights plus the metadata inference
// needs, with no optimizer state.
type Snapshot struct {
	Generator  model.State
	SampleRate int
	Vocoder    string
	Epoch      int
	Step       int
	Speakers   int
	Overtrain  OvertrainInfo
}

// SaveSnapshot writes a snapshot atomically.
func SaveSnapshot(path string, snap *Snapshot) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot %s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	var snap Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}
