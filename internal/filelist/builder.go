// Package filelist assembles the training manifest: the intersection of
// every utterance's artifacts, plus optional silence rows per speaker.
package filelist

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/npy"
)

// Builder writes the manifest consumed by the training workers.
type Builder struct {
	cfg    config.Config
	exp    *experiment.Experiment
	logger *slog.Logger
}

func New(cfg config.Config, exp *experiment.Experiment, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, exp: exp, logger: logger}
}

func (b *Builder) embedderName() string {
	if b.cfg.Extraction.CustomEmbedderModel != "" {
		return "custom"
	}
	return b.cfg.Extraction.EmbedderModel
}

// SpeakerID extracts the speaker label from an utterance id, the prefix
// before the first underscore. Ids without a separator form one speaker.
func SpeakerID(name string) string {
	if i := strings.Index(name, "_"); i > 0 {
		return name[:i]
	}
	return name
}

func idsIn(dir, ext string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	ids := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		ids[strings.TrimSuffix(entry.Name(), ext)] = true
	}
	return ids, nil
}

// Build intersects the four artifact folders, writes the shuffled manifest,
// appends silence rows when configured, and records the speaker count in
// experiment metadata. An utterance missing any artifact is dropped with a
// log line, never an error.
func (b *Builder) Build() error {
	method := b.cfg.Extraction.F0Method
	embedder := b.embedderName()

	wavs, err := idsIn(b.exp.SlicedAudioDir(), ".wav")
	if err != nil {
		return err
	}
	embs, err := idsIn(b.exp.EmbeddingDir(embedder), ".npy")
	if err != nil {
		return err
	}
	fulls, err := idsIn(b.exp.FullPitchDir(method), ".npy")
	if err != nil {
		return err
	}
	coarses, err := idsIn(b.exp.CoarsePitchDir(method), ".npy")
	if err != nil {
		return err
	}

	var ids []string
	for id := range wavs {
		if embs[id] && fulls[id] && coarses[id] {
			ids = append(ids, id)
		} else {
			b.logger.Warn("utterance missing artifacts, excluded from manifest", "id", id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no utterance has a complete artifact set")
	}
	sort.Strings(ids)

	speakers := make(map[string]int)
	for _, id := range ids {
		label := SpeakerID(id)
		if _, ok := speakers[label]; !ok {
			speakers[label] = len(speakers)
		}
	}

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, strings.Join([]string{
			filepath.Join(b.exp.SlicedAudioDir(), id+".wav"),
			filepath.Join(b.exp.EmbeddingDir(embedder), id+".npy"),
			filepath.Join(b.exp.FullPitchDir(method), id+".npy"),
			filepath.Join(b.exp.CoarsePitchDir(method), id+".npy"),
			fmt.Sprintf("%d", speakers[SpeakerID(id)]),
		}, "|"))
	}

	if k := b.cfg.Filelist.IncludeMutes; k > 0 {
		mute, err := b.EnsureMuteArtifacts()
		if err != nil {
			return err
		}
		labels := make([]string, 0, len(speakers))
		for label := range speakers {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			for i := 0; i < k; i++ {
				lines = append(lines, strings.Join([]string{
					mute.Wav, mute.Embedding, mute.FullPitch, mute.CoarsePitch,
					fmt.Sprintf("%d", speakers[label]),
				}, "|"))
			}
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(lines), func(i, j int) { lines[i], lines[j] = lines[j], lines[i] })

	path := b.exp.FilelistPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}

	if err := b.exp.UpdateMetadata(func(md *experiment.Metadata) {
		md.SpeakersID = len(speakers)
	}); err != nil {
		return err
	}
	b.logger.Info("manifest written",
		"utterances", len(ids), "speakers", len(speakers), "rows", len(lines))
	return nil
}

// MuteSet points at the shared silence artifacts.
type MuteSet struct {
	Wav         string
	Embedding   string
	FullPitch   string
	CoarsePitch string
}

// EnsureMuteArtifacts generates the shared silence artifact set next to the
// experiments, sized for this experiment's geometry, reusing files already
// present.
func (b *Builder) EnsureMuteArtifacts() (*MuteSet, error) {
	dir := b.exp.MuteDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mute dir: %w", err)
	}
	sr := b.cfg.Training.SampleRate
	set := &MuteSet{
		Wav:         filepath.Join(dir, fmt.Sprintf("mute_%d.wav", sr)),
		Embedding:   filepath.Join(dir, "mute_emb.npy"),
		FullPitch:   filepath.Join(dir, "mute_f0_full.npy"),
		CoarsePitch: filepath.Join(dir, "mute_f0_coarse.npy"),
	}

	// three seconds of silence, enough frames for any training segment
	const seconds = 3
	frames := seconds * sr / b.cfg.Model.HopLength

	if _, err := os.Stat(set.Wav); err != nil {
		if err := audio.WriteWAVFile(set.Wav, make([]float64, seconds*sr), sr); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(set.Embedding); err != nil {
		rows := make([][]float64, frames)
		for i := range rows {
			rows[i] = make([]float64, b.cfg.Model.EmbeddingDim)
		}
		if err := npy.SaveFloat2D(set.Embedding, rows); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(set.FullPitch); err != nil {
		if err := npy.SaveFloat1D(set.FullPitch, make([]float64, frames)); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(set.CoarsePitch); err != nil {
		bins := make([]int64, frames)
		for i := range bins {
			bins[i] = 1
		}
		if err := npy.SaveInt1D(set.CoarsePitch, bins); err != nil {
			return nil, err
		}
	}
	return set, nil
}
