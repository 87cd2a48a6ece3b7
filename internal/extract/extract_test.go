package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/device"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/npy"
)

func testExperiment(t *testing.T, utterances int) *experiment.Experiment {
	t.Helper()
	exp := experiment.New(t.TempDir(), "voice")
	if err := exp.EnsureDirs("acf", "contentvec"); err != nil {
		t.Fatal(err)
	}
	sr := 16000
	for i := 0; i < utterances; i++ {
		samples := make([]float64, sr/2)
		for j := range samples {
			samples[j] = 0.5 * math.Sin(2*math.Pi*200*float64(j)/float64(sr))
		}
		path := filepath.Join(exp.SlicedAudio16kDir(), fmt.Sprintf("spk0_%d.wav", i))
		if err := audio.WriteWAVFile(path, samples, sr); err != nil {
			t.Fatal(err)
		}
	}
	return exp
}

func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Extraction.F0Method = "acf"
	cfg.Extraction.Threads = 2
	cfg.Devices.Type = "cpu"
	return cfg
}

func TestIndex_SortedAndComplete(t *testing.T) {
	exp := testExperiment(t, 3)
	items, err := Index(exp, "acf", "contentvec")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("items: got %d, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].WavPath >= items[i].WavPath {
			t.Fatal("items not sorted")
		}
	}
	if items[0].Name() != "spk0_0" {
		t.Errorf("name: got %q", items[0].Name())
	}
}

func TestShard_RoundRobinBalance(t *testing.T) {
	items := make([]WorkItem, 10)
	for i := range items {
		items[i].WavPath = fmt.Sprintf("%02d.wav", i)
	}
	world := 3
	var total int
	for rank := 0; rank < world; rank++ {
		shard := Shard(items, rank, world)
		if len(shard) < 3 || len(shard) > 4 {
			t.Errorf("rank %d shard size %d, want 3 or 4", rank, len(shard))
		}
		total += len(shard)
	}
	if total != len(items) {
		t.Fatalf("shards cover %d items, want %d", total, len(items))
	}
	// stride assignment: rank 1 starts at index 1
	if got := Shard(items, 1, world)[0].WavPath; got != "01.wav" {
		t.Errorf("rank 1 first item: got %s", got)
	}
}

func TestNewPitchExtractor_UnknownMethod(t *testing.T) {
	if _, err := NewPitchExtractor("crepe", 16000, 160); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}

func TestPitchExtractor_ACFTone(t *testing.T) {
	p, err := NewPitchExtractor("acf", 16000, 160)
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 200 * float64(i) / 16000)
	}
	f0 := p.ComputeF0(samples)
	voiced := 0
	for _, v := range f0 {
		if v == 0 {
			continue
		}
		voiced++
		if math.Abs(v-200) > 10 {
			t.Fatalf("acf estimate %.1f too far from 200", v)
		}
	}
	if voiced == 0 {
		t.Fatal("no voiced frames on a pure tone")
	}
}

func TestPitchExtractor_YinTone(t *testing.T) {
	p, err := NewPitchExtractor("yin", 16000, 160)
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]float64, 16000)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 160 * float64(i) / 16000)
	}
	f0 := p.ComputeF0(samples)
	voiced := 0
	for _, v := range f0 {
		if v == 0 {
			continue
		}
		voiced++
		if math.Abs(v-160) > 10 {
			t.Fatalf("yin estimate %.1f too far from 160", v)
		}
	}
	if voiced == 0 {
		t.Fatal("no voiced frames on a pure tone")
	}
}

func TestInterpolateF0(t *testing.T) {
	in := []float64{0, 0, 100, 0, 0, 0, 200, 0}
	out := InterpolateF0(in)
	want := []float64{100, 100, 100, 125, 150, 175, 200, 200}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Fatalf("frame %d: got %v, want %v", i, out[i], want[i])
		}
	}

	silent := InterpolateF0([]float64{0, 0, 0})
	for _, v := range silent {
		if v != 0 {
			t.Fatal("fully unvoiced curve should stay zero")
		}
	}
}

func TestCoarseF0_Bounds(t *testing.T) {
	in := []float64{0, 50, 1100, 5000, 440}
	out := CoarseF0(in)
	if out[0] != 1 {
		t.Errorf("unvoiced bin: got %d, want 1", out[0])
	}
	if out[1] != 1 {
		t.Errorf("f0_min bin: got %d, want 1", out[1])
	}
	if out[2] != 254 {
		t.Errorf("f0_max bin: got %d, want 254", out[2])
	}
	if out[3] != 254 {
		t.Errorf("above-range bin: got %d, want 254", out[3])
	}
	if out[4] <= 1 || out[4] >= 254 {
		t.Errorf("mid-range bin out of interior: %d", out[4])
	}
	// monotone in pitch
	a, b := CoarseF0([]float64{220})[0], CoarseF0([]float64{440})[0]
	if a >= b {
		t.Errorf("bins not monotone: %d >= %d", a, b)
	}
}

func TestProcessItem_CoarseFollowsInterpolatedPitch(t *testing.T) {
	dir := t.TempDir()
	sr := 16000
	// tone, silence, tone: the gap frames are unvoiced in the raw curve
	samples := make([]float64, sr)
	for i := 0; i < 4800; i++ {
		samples[i] = math.Sin(2 * math.Pi * 200 * float64(i) / float64(sr))
		samples[sr-4800+i] = math.Sin(2 * math.Pi * 200 * float64(i) / float64(sr))
	}
	item := WorkItem{
		WavPath:         filepath.Join(dir, "gap.wav"),
		FullPitchPath:   filepath.Join(dir, "gap_full.npy"),
		CoarsePitchPath: filepath.Join(dir, "gap_coarse.npy"),
	}
	if err := audio.WriteWAVFile(item.WavPath, samples, sr); err != nil {
		t.Fatal(err)
	}

	p, err := NewPitchExtractor("acf", sr, 160)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ProcessItem(item); err != nil {
		t.Fatal(err)
	}

	full, err := npy.Load(item.FullPitchPath)
	if err != nil {
		t.Fatal(err)
	}
	coarse, err := npy.Load(item.CoarsePitchPath)
	if err != nil {
		t.Fatal(err)
	}
	// interpolation bridges the silent gap, so the full curve is voiced
	// everywhere and both artifacts must agree frame by frame
	for i, v := range full.Float32 {
		if v <= 0 {
			t.Fatalf("frame %d: full curve unvoiced after interpolation", i)
		}
		if coarse.Int64[i] <= 1 {
			t.Fatalf("frame %d: coarse bin %d quantized from the raw curve, not the persisted one",
				i, coarse.Int64[i])
		}
	}
}

type nanEmbedder struct{}

func (nanEmbedder) Infer(samples []float64) ([][]float64, error) {
	out := make([][]float64, 4)
	for i := range out {
		out[i] = []float64{0.5, math.NaN(), 0.5}
	}
	return out, nil
}

func TestEmbeddingExtractor_NonFiniteOutputLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	sr := 16000
	samples := make([]float64, sr/4)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*200*float64(i)/float64(sr))
	}
	item := WorkItem{
		WavPath:       filepath.Join(dir, "bad.wav"),
		EmbeddingPath: filepath.Join(dir, "bad_emb.npy"),
	}
	if err := audio.WriteWAVFile(item.WavPath, samples, sr); err != nil {
		t.Fatal(err)
	}

	e := &EmbeddingExtractor{
		model:  nanEmbedder{},
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	if err := e.ProcessItem(item); err != nil {
		t.Fatalf("non-finite output must be skipped, not fatal: %v", err)
	}
	if _, err := os.Stat(item.EmbeddingPath); !os.IsNotExist(err) {
		t.Fatal("embedding file written despite non-finite values")
	}
}

func TestRunShard_ProducesArtifactsAndIsIdempotent(t *testing.T) {
	exp := testExperiment(t, 4)
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c := NewCoordinator(cfg, "", exp, logger)
	devices := []device.Device{{Type: device.CPU}}

	if err := c.RunShard(context.Background(), 0, devices); err != nil {
		t.Fatal(err)
	}
	items, _ := Index(exp, "acf", "contentvec")
	for _, item := range items {
		if !item.Done() {
			t.Fatalf("item %s incomplete", item.Name())
		}
		full, err := npy.Load(item.FullPitchPath)
		if err != nil {
			t.Fatal(err)
		}
		coarse, err := npy.Load(item.CoarsePitchPath)
		if err != nil {
			t.Fatal(err)
		}
		if len(full.Float32) != len(coarse.Int64) {
			t.Fatalf("pitch artifact lengths differ: %d vs %d", len(full.Float32), len(coarse.Int64))
		}
	}

	// mutate one artifact; a rerun must skip completed items and leave it
	marker := items[0].FullPitchPath
	if err := os.WriteFile(marker, []byte("sentinel"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.RunShard(context.Background(), 0, devices); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "sentinel" {
		t.Fatal("rerun rewrote an already-complete item")
	}
}
