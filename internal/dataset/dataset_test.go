package dataset

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/npy"
)

const (
	testHop = 160
	testDim = 8
)

// writeRow materializes a synthetic utterance of the given frame count and
// returns its manifest row.
func writeRow(t *testing.T, dir, id string, frames, sid int) Row {
	t.Helper()
	row := Row{
		WavPath:         filepath.Join(dir, id+".wav"),
		EmbeddingPath:   filepath.Join(dir, id+"_emb.npy"),
		FullPitchPath:   filepath.Join(dir, id+"_f0.npy"),
		CoarsePitchPath: filepath.Join(dir, id+"_f0c.npy"),
		SpeakerID:       sid,
	}
	if err := audio.WriteWAVFile(row.WavPath, make([]float64, frames*testHop), 16000); err != nil {
		t.Fatal(err)
	}
	emb := make([][]float64, frames)
	f0 := make([]float64, frames)
	f0c := make([]int64, frames)
	for f := range emb {
		emb[f] = make([]float64, testDim)
		emb[f][0] = float64(f)
		f0[f] = 200
		f0c[f] = 100
	}
	if err := npy.SaveFloat2D(row.EmbeddingPath, emb); err != nil {
		t.Fatal(err)
	}
	if err := npy.SaveFloat1D(row.FullPitchPath, f0); err != nil {
		t.Fatal(err)
	}
	if err := npy.SaveInt1D(row.CoarsePitchPath, f0c); err != nil {
		t.Fatal(err)
	}
	return row
}

func TestParseManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filelist.txt")
	content := "a.wav|a_emb.npy|a_f0.npy|a_f0c.npy|0\n\nb.wav|b_emb.npy|b_f0.npy|b_f0c.npy|3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := ParseManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}
	if rows[1].SpeakerID != 3 || rows[1].WavPath != "b.wav" {
		t.Errorf("row 1: %+v", rows[1])
	}

	bad := filepath.Join(dir, "bad.txt")
	os.WriteFile(bad, []byte("only|four|fields|here\n"), 0o644)
	if _, err := ParseManifest(bad); err == nil {
		t.Fatal("expected error on malformed line")
	}
}

func TestDataset_LoadAlignsLengths(t *testing.T) {
	dir := t.TempDir()
	row := writeRow(t, dir, "u", 120, 2)

	// shorten the coarse curve; everything must trim to it
	if err := npy.SaveInt1D(row.CoarsePitchPath, make([]int64, 100)); err != nil {
		t.Fatal(err)
	}
	ds := New([]Row{row}, testHop)
	item, err := ds.Load(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(item.Phone) != 100 || len(item.Pitch) != 100 || len(item.PitchF) != 100 {
		t.Fatalf("frame counts: %d/%d/%d, want 100", len(item.Phone), len(item.Pitch), len(item.PitchF))
	}
	if len(item.Wave) != 100*testHop {
		t.Fatalf("wave samples: got %d, want %d", len(item.Wave), 100*testHop)
	}
	if item.SID != 2 {
		t.Errorf("sid: got %d", item.SID)
	}
	if item.Phone[5][0] != 5 {
		t.Errorf("embedding content lost: %v", item.Phone[5][0])
	}
}

func TestDataset_FrameLength(t *testing.T) {
	dir := t.TempDir()
	row := writeRow(t, dir, "u", 200, 0)
	ds := New([]Row{row}, testHop)
	n, err := ds.FrameLength(0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 200 {
		t.Errorf("frames: got %d, want 200", n)
	}
}

func TestCollate_PadsToLongest(t *testing.T) {
	dir := t.TempDir()
	ds := New([]Row{
		writeRow(t, dir, "short", 60, 0),
		writeRow(t, dir, "long", 90, 1),
	}, testHop)

	a, _ := ds.Load(0)
	b, _ := ds.Load(1)
	batch := Collate([]*Item{a, b})

	if len(batch.Phone[0]) != 90 || len(batch.Phone[1]) != 90 {
		t.Fatalf("padded frames: %d/%d, want 90", len(batch.Phone[0]), len(batch.Phone[1]))
	}
	if batch.PhoneLengths[0] != 60 || batch.PhoneLengths[1] != 90 {
		t.Errorf("true lengths: %v", batch.PhoneLengths)
	}
	// padding is zeros
	for f := 60; f < 90; f++ {
		for _, v := range batch.Phone[0][f] {
			if v != 0 {
				t.Fatal("padding contains data")
			}
		}
		if batch.Pitch[0][f] != 0 {
			t.Fatal("pitch padding contains data")
		}
	}
	if batch.SID[0] != 0 || batch.SID[1] != 1 {
		t.Errorf("sids: %v", batch.SID)
	}
}

func TestSampler_ShardsCoverAllBatches(t *testing.T) {
	lengths := make([]int, 40)
	for i := range lengths {
		lengths[i] = 60 + i*10%800
	}
	world, batchSize := 2, 4

	seen := map[int]int{}
	perRank := -1
	for rank := 0; rank < world; rank++ {
		s := NewSampler(lengths, batchSize, rank, world, 1234)
		batches := s.Batches(0)
		if perRank < 0 {
			perRank = len(batches)
		} else if len(batches) != perRank {
			t.Fatalf("rank batch counts differ: %d vs %d", len(batches), perRank)
		}
		if len(batches) != s.BatchesPerEpoch() {
			t.Fatalf("BatchesPerEpoch %d, actual %d", s.BatchesPerEpoch(), len(batches))
		}
		for _, b := range batches {
			for _, idx := range b {
				seen[idx]++
			}
		}
	}
	for i := range lengths {
		if seen[i] == 0 {
			t.Fatalf("row %d never sampled", i)
		}
	}
}

func TestSampler_EpochReshuffles(t *testing.T) {
	lengths := make([]int, 32)
	for i := range lengths {
		lengths[i] = 100 + i
	}
	s := NewSampler(lengths, 4, 0, 1, 7)
	flat := func(batches [][]int) []int {
		var out []int
		for _, b := range batches {
			out = append(out, b...)
		}
		return out
	}
	a := flat(s.Batches(0))
	b := flat(s.Batches(1))
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("epoch 0 and 1 orders identical")
	}
	// same epoch replays identically
	c := flat(s.Batches(0))
	for i := range a {
		if a[i] != c[i] {
			t.Fatal("epoch replay not deterministic")
		}
	}
}

func TestSampler_DropsOutOfRange(t *testing.T) {
	s := NewSampler([]int{10, 100, 2000}, 1, 0, 1, 1)
	if s.Dropped(3) != 2 {
		t.Errorf("dropped: got %d, want 2", s.Dropped(3))
	}
}

func TestNewLoader_Insufficient(t *testing.T) {
	dir := t.TempDir()
	rows := []Row{writeRow(t, dir, "only", 100, 0)}
	_, err := NewLoader(rows, testHop, 8, 0, 1, 1)
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("got %v, want ErrInsufficient", err)
	}
}

func TestLoader_Epoch(t *testing.T) {
	dir := t.TempDir()
	var rows []Row
	for i := 0; i < 12; i++ {
		rows = append(rows, writeRow(t, dir, fmt.Sprintf("u%02d", i), 60+i*5, i%2))
	}
	loader, err := NewLoader(rows, testHop, 2, 0, 1, 42)
	if err != nil {
		t.Fatal(err)
	}
	if loader.BatchesPerEpoch() < 3 {
		t.Fatalf("batches per epoch: %d", loader.BatchesPerEpoch())
	}
	count := 0
	err = loader.Epoch(0, func(bi int, items []*Item) error {
		if len(items) != 2 {
			t.Fatalf("batch size: got %d", len(items))
		}
		batch := Collate(items)
		if len(batch.Phone) != 2 {
			t.Fatal("collate lost items")
		}
		for _, v := range batch.PitchF[0] {
			if math.IsNaN(v) {
				t.Fatal("NaN pitch in batch")
			}
		}
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != loader.BatchesPerEpoch() {
		t.Fatalf("visited %d batches, want %d", count, loader.BatchesPerEpoch())
	}
}
