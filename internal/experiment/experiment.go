// Package experiment owns the on-disk layout of one model-in-training: the
// sliced audio, derived feature folders, manifest, metadata and checkpoints.
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
)

type Experiment struct {
	Name string
	Dir  string
}

func New(experimentsDir, name string) *Experiment {
	return &Experiment{
		Name: name,
		Dir:  filepath.Join(experimentsDir, name),
	}
}

// SlicedAudioDir holds the ground-truth waveforms at the training sample
// rate.
func (e *Experiment) SlicedAudioDir() string {
	return filepath.Join(e.Dir, "sliced_audios")
}

// SlicedAudio16kDir holds the 16 kHz copies used as extractor input.
func (e *Experiment) SlicedAudio16kDir() string {
	return filepath.Join(e.Dir, "sliced_audios_16k")
}

// CoarsePitchDir holds the quantized pitch artifacts for one method.
func (e *Experiment) CoarsePitchDir(method string) string {
	return filepath.Join(e.Dir, "f0_"+method)
}

// FullPitchDir holds the continuous voiced pitch artifacts for one method.
func (e *Experiment) FullPitchDir(method string) string {
	return filepath.Join(e.Dir, "f0_"+method+"_voiced")
}

// EmbeddingDir holds the hidden-representation artifacts for one embedder.
func (e *Experiment) EmbeddingDir(embedder string) string {
	return filepath.Join(e.Dir, embedder+"_extracted")
}

func (e *Experiment) FilelistPath() string {
	return filepath.Join(e.Dir, "filelist.txt")
}

func (e *Experiment) MetadataPath() string {
	return filepath.Join(e.Dir, "model_info.json")
}

func (e *Experiment) ProgressPath() string {
	return filepath.Join(e.Dir, "progress.json")
}

// CheckpointPath returns the checkpoint file for a role ("G" or "D") and an
// index, which is either an epoch number or the "latest" sentinel.
func (e *Experiment) CheckpointPath(role, index string) string {
	return filepath.Join(e.Dir, fmt.Sprintf("%s_%s.ckpt", role, index))
}

// SnapshotPath returns the deployable model snapshot path for a tag such as
// "best" or an epoch number.
func (e *Experiment) SnapshotPath(tag string) string {
	return filepath.Join(e.Dir, fmt.Sprintf("%s_%s.model", e.Name, tag))
}

// MuteDir holds the shared silence artifact set used for manifest padding
// rows, one level above the experiment so all experiments reuse it.
func (e *Experiment) MuteDir() string {
	return filepath.Join(filepath.Dir(e.Dir), "mute")
}

// Exists reports whether the experiment directory is present.
func (e *Experiment) Exists() bool {
	info, err := os.Stat(e.Dir)
	return err == nil && info.IsDir()
}

// EnsureDirs creates the experiment root and the artifact folders needed for
// extraction with the given pitch method and embedder.
func (e *Experiment) EnsureDirs(method, embedder string) error {
	dirs := []string{
		e.Dir,
		e.SlicedAudioDir(),
		e.SlicedAudio16kDir(),
		e.CoarsePitchDir(method),
		e.FullPitchDir(method),
		e.EmbeddingDir(embedder),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
