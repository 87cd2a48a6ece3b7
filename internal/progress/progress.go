// Package progress persists small JSON status files the watch view polls.
// Writes are atomic so a reader never sees a torn file.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExtractionShard is the status of one extraction worker process.
type ExtractionShard struct {
	Rank      int       `json:"rank"`
	Device    string    `json:"device"`
	Done      int       `json:"done"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Training is the coordinator-rank training status, refreshed per epoch.
type Training struct {
	State       string    `json:"state"`
	Epoch       int       `json:"epoch"`
	TotalEpochs int       `json:"total_epochs"`
	Step        int       `json:"step"`
	AvgGenLoss  float64   `json:"avg_gen_loss"`
	BestLoss    float64   `json:"best_loss"`
	BestEpoch   int       `json:"best_epoch"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExtractionPath returns the status file for one shard rank.
func ExtractionPath(expDir string, rank int) string {
	return filepath.Join(expDir, fmt.Sprintf("extract_progress_%d.json", rank))
}

func write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func WriteExtraction(path string, p ExtractionShard) error {
	p.UpdatedAt = time.Now()
	return write(path, p)
}

func ReadExtraction(path string) (ExtractionShard, error) {
	var p ExtractionShard
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

func WriteTraining(path string, p Training) error {
	p.UpdatedAt = time.Now()
	return write(path, p)
}

func ReadTraining(path string) (Training, error) {
	var p Training
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}
