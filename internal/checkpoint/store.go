// Package checkpoint persists resumable training state and deployable model
// snapshots. All writes go through a temp file and rename so a crash never
// leaves a torn checkpoint behind.
package checkpoint

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
)

var (
	ErrNotFound     = errors.New("checkpoint not found")
	ErrIncompatible = errors.New("checkpoint incompatible with model")
)

// Latest is the index used when only the newest checkpoint is kept.
const Latest = "latest"

// OptimizerState is the serialized form of an optimizer's internal moments.
type OptimizerState struct {
	Kind    string
	Step    int
	Moment1 model.State
	Moment2 model.State
}

// Best tracks the lowest observed epoch-average loss.
type Best struct {
	Value float64
	Epoch int
}

// Checkpoint is one resumable training state for a single network role.
type Checkpoint struct {
	OptimizerKind string
	Epoch         int
	Step          int
	LearningRate  float64
	Model         model.State
	Optimizer     OptimizerState

	// overtraining detector state, carried on the generator checkpoint
	BestGen                   Best
	BestDisc                  Best
	ConsecutiveNonImprove     int
	ConsecutiveDiscNonImprove int
}

// Store reads and writes checkpoints inside one experiment directory.
type Store struct {
	exp    *experiment.Experiment
	logger *slog.Logger
}

func NewStore(exp *experiment.Experiment, logger *slog.Logger) *Store {
	return &Store{exp: exp, logger: logger}
}

// Save writes a checkpoint for a role ("G" or "D"). When onlyLatest is set
// the file is keyed by the latest sentinel and overwritten each time,
// otherwise it is keyed by epoch.
func (s *Store) Save(role string, ck *Checkpoint, onlyLatest bool) error {
	index := Latest
	if !onlyLatest {
		index = strconv.Itoa(ck.Epoch)
	}
	path := s.exp.CheckpointPath(role, index)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(ck); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	s.logger.Info("checkpoint saved", "role", role, "epoch", ck.Epoch, "path", path)
	return nil
}

// Load reads the checkpoint for a role at an index.
func (s *Store) Load(role, index string) (*Checkpoint, error) {
	path := s.exp.CheckpointPath(role, index)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s at %q: %w", role, index, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	var ck Checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &ck, nil
}

var ckptIndexRe = regexp.MustCompile(`^(G|D)_(\d+)\.ckpt$`)

// LatestIndex finds the newest checkpoint index for a role: the latest
// sentinel if present, otherwise the highest epoch number on disk.
func (s *Store) LatestIndex(role string) (string, error) {
	if _, err := os.Stat(s.exp.CheckpointPath(role, Latest)); err == nil {
		return Latest, nil
	}
	entries, err := os.ReadDir(s.exp.Dir)
	if err != nil {
		return "", err
	}
	best := -1
	for _, entry := range entries {
		m := ckptIndexRe.FindStringSubmatch(entry.Name())
		if m == nil || m[1] != role {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > best {
			best = n
		}
	}
	if best < 0 {
		return "", fmt.Errorf("%s: %w", role, ErrNotFound)
	}
	return strconv.Itoa(best), nil
}

// LoadInto loads the newest checkpoint for a role into a module, verifying
// parameter shapes before touching the model so an incompatible file leaves
// it untouched.
func (s *Store) LoadInto(role string, m model.Module) (*Checkpoint, error) {
	index, err := s.LatestIndex(role)
	if err != nil {
		return nil, err
	}
	ck, err := s.Load(role, index)
	if err != nil {
		return nil, err
	}
	if err := model.CompatibleShapes(m, ck.Model); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if err := m.LoadStateDict(ck.Model); err != nil {
		return nil, err
	}
	return ck, nil
}

// LoadPretrained seeds a module from a bare state file, with the same shape
// pre-check as checkpoint resume.
func LoadPretrained(path string, m model.Module) error {
	state, err := model.LoadState(path)
	if err != nil {
		return fmt.Errorf("load pretrained %s: %w", path, err)
	}
	if err := model.CompatibleShapes(m, state); err != nil {
		return fmt.Errorf("pretrained %s: %w: %v", filepath.Base(path), ErrIncompatible, err)
	}
	return m.LoadStateDict(state)
}

// Cleanup removes checkpoints, snapshots and progress files from a previous
// run of this experiment, keeping the extracted features and manifest.
func (s *Store) Cleanup() error {
	entries, err := os.ReadDir(s.exp.Dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) == ".ckpt" || filepath.Ext(name) == ".model" ||
			name == "progress.json" || name == "train.log" {
			if err := os.Remove(filepath.Join(s.exp.Dir, name)); err != nil {
				return err
			}
			s.logger.Info("removed stale artifact", "file", name)
		}
	}
	return nil
}
