// Package dataset serves training batches from the manifest: lazy artifact
// loading, length-bucketed sampling sharded across ranks, and collation into
// padded batches.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/npy"
)

// ErrInsufficient is returned when the manifest cannot fill the minimum
// number of batches training needs.
var ErrInsufficient = errors.New("dataset too small for training")

// Row is one manifest record.
type Row struct {
	WavPath         string
	EmbeddingPath   string
	FullPitchPath   string
	CoarsePitchPath string
	SpeakerID       int
}

// ParseManifest reads the pipe-separated manifest written by the filelist
// builder. Blank lines are skipped; a malformed line is an error.
func ParseManifest(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 5 {
			return nil, fmt.Errorf("manifest line %d: %d fields, want 5", lineNo, len(fields))
		}
		sid, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad speaker id %q", lineNo, fields[4])
		}
		rows = append(rows, Row{
			WavPath:         fields[0],
			EmbeddingPath:   fields[1],
			FullPitchPath:   fields[2],
			CoarsePitchPath: fields[3],
			SpeakerID:       sid,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return rows, nil
}

// Item is one fully loaded utterance, lengths aligned across artifacts.
type Item struct {
	Phone  [][]float64
	Pitch  []int64
	PitchF []float64
	Wave   []float64
	SID    int
}

// Dataset lazily loads utterances from manifest rows.
type Dataset struct {
	rows []Row
	hop  int
}

func New(rows []Row, hopLength int) *Dataset {
	return &Dataset{rows: rows, hop: hopLength}
}

func (d *Dataset) Len() int { return len(d.rows) }

// FrameLength estimates the utterance length in frames from the waveform
// file size, without opening the file contents.
func (d *Dataset) FrameLength(i int) (int, error) {
	info, err := os.Stat(d.rows[i].WavPath)
	if err != nil {
		return 0, err
	}
	const wavHeader = 44
	samples := (info.Size() - wavHeader) / 2
	if samples < 0 {
		samples = 0
	}
	return int(samples) / d.hop, nil
}

// Load reads every artifact of one row and trims them to a common frame
// count. The embedding grid is coarser than the pitch grid, so pitch and
// waveform are cut down to the embedding's span.
func (d *Dataset) Load(i int) (*Item, error) {
	row := d.rows[i]

	emb, err := npy.Load(row.EmbeddingPath)
	if err != nil {
		return nil, fmt.Errorf("load embedding %s: %w", row.EmbeddingPath, err)
	}
	full, err := npy.Load(row.FullPitchPath)
	if err != nil {
		return nil, fmt.Errorf("load full pitch %s: %w", row.FullPitchPath, err)
	}
	coarse, err := npy.Load(row.CoarsePitchPath)
	if err != nil {
		return nil, fmt.Errorf("load coarse pitch %s: %w", row.CoarsePitchPath, err)
	}
	wave, _, err := audio.ReadWAVFile(row.WavPath)
	if err != nil {
		return nil, fmt.Errorf("load waveform %s: %w", row.WavPath, err)
	}

	frames := emb.Rows()
	if n := len(full.Float32); n < frames {
		frames = n
	}
	if n := len(coarse.Int64); n < frames {
		frames = n
	}
	if n := len(wave) / d.hop; n < frames {
		frames = n
	}
	if frames == 0 {
		return nil, fmt.Errorf("utterance %s has no usable frames", row.WavPath)
	}

	dim := emb.Shape[1]
	item := &Item{
		Phone:  make([][]float64, frames),
		Pitch:  make([]int64, frames),
		PitchF: make([]float64, frames),
		Wave:   make([]float64, frames*d.hop),
		SID:    row.SpeakerID,
	}
	for f := 0; f < frames; f++ {
		vec := make([]float64, dim)
		for j := 0; j < dim; j++ {
			vec[j] = float64(emb.Float32[f*dim+j])
		}
		item.Phone[f] = vec
		item.Pitch[f] = coarse.Int64[f]
		item.PitchF[f] = float64(full.Float32[f])
	}
	copy(item.Wave, wave[:frames*d.hop])
	return item, nil
}

// Collate pads a set of items to the longest utterance among them and packs
// them into one batch. Padded frames carry zeros; true lengths travel in
// PhoneLengths and WaveLengths.
func Collate(items []*Item) *model.Batch {
	maxFrames, dim := 0, 0
	for _, it := range items {
		if len(it.Phone) > maxFrames {
			maxFrames = len(it.Phone)
		}
		if len(it.Phone) > 0 && len(it.Phone[0]) > dim {
			dim = len(it.Phone[0])
		}
	}

	b := &model.Batch{}
	for _, it := range items {
		frames := len(it.Phone)
		phone := make([][]float64, maxFrames)
		pitch := make([]int64, maxFrames)
		pitchf := make([]float64, maxFrames)
		for f := 0; f < maxFrames; f++ {
			if f < frames {
				phone[f] = it.Phone[f]
				pitch[f] = it.Pitch[f]
				pitchf[f] = it.PitchF[f]
			} else {
				phone[f] = make([]float64, dim)
			}
		}
		wave := make([]float64, maxFrames*len(it.Wave)/frames)
		copy(wave, it.Wave)

		b.Phone = append(b.Phone, phone)
		b.PhoneLengths = append(b.PhoneLengths, frames)
		b.Pitch = append(b.Pitch, pitch)
		b.PitchF = append(b.PitchF, pitchf)
		b.Wave = append(b.Wave, wave)
		b.WaveLengths = append(b.WaveLengths, len(it.Wave))
		b.SID = append(b.SID, it.SID)
	}
	return b
}
