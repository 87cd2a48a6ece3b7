package checkpoint

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
)

func testStore(t *testing.T) (*Store, *experiment.Experiment) {
	t.Helper()
	exp := experiment.New(t.TempDir(), "voice")
	if err := os.MkdirAll(exp.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewStore(exp, logger), exp
}

func testGenerator(t *testing.T, speakers int) model.Generator {
	t.Helper()
	cfg := config.Default().Model
	gen, err := model.NewGenerator(cfg, 40000, speakers, "hifigan", 1234)
	if err != nil {
		t.Fatal(err)
	}
	return gen
}

func testCheckpoint(gen model.Generator) *Checkpoint {
	return &Checkpoint{
		OptimizerKind: "adamw",
		Epoch:         7,
		Step:          1000,
		LearningRate:  9.5e-5,
		Model:         gen.StateDict(),
		Optimizer: OptimizerState{
			Kind:    "adamw",
			Step:    1000,
			Moment1: gen.StateDict(),
			Moment2: gen.StateDict(),
		},
		BestGen:               Best{Value: 1.23, Epoch: 5},
		ConsecutiveNonImprove: 2,
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	gen := testGenerator(t, 1)

	if err := store.Save("G", testCheckpoint(gen), false); err != nil {
		t.Fatal(err)
	}
	ck, err := store.Load("G", "7")
	if err != nil {
		t.Fatal(err)
	}
	if ck.Epoch != 7 || ck.Step != 1000 {
		t.Errorf("epoch/step: got %d/%d", ck.Epoch, ck.Step)
	}
	if ck.BestGen.Value != 1.23 || ck.BestGen.Epoch != 5 {
		t.Errorf("best loss: got %+v", ck.BestGen)
	}
	if ck.ConsecutiveNonImprove != 2 {
		t.Errorf("non-improve count: got %d", ck.ConsecutiveNonImprove)
	}
	if ck.Optimizer.Kind != "adamw" {
		t.Errorf("optimizer kind: got %q", ck.Optimizer.Kind)
	}
}

func TestStore_OnlyLatestUsesSentinel(t *testing.T) {
	store, exp := testStore(t)
	gen := testGenerator(t, 1)

	if err := store.Save("G", testCheckpoint(gen), true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(exp.CheckpointPath("G", Latest)); err != nil {
		t.Fatal("latest sentinel file missing")
	}
	index, err := store.LatestIndex("G")
	if err != nil {
		t.Fatal(err)
	}
	if index != Latest {
		t.Errorf("index: got %q, want %q", index, Latest)
	}
}

func TestStore_LatestIndexPicksHighestEpoch(t *testing.T) {
	store, _ := testStore(t)
	gen := testGenerator(t, 1)

	for _, epoch := range []int{3, 10, 7} {
		ck := testCheckpoint(gen)
		ck.Epoch = epoch
		if err := store.Save("G", ck, false); err != nil {
			t.Fatal(err)
		}
	}
	index, err := store.LatestIndex("G")
	if err != nil {
		t.Fatal(err)
	}
	if index != "10" {
		t.Errorf("index: got %q, want 10", index)
	}
}

func TestStore_NotFound(t *testing.T) {
	store, _ := testStore(t)
	if _, err := store.LatestIndex("G"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := store.Load("D", "3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestStore_LoadIntoRejectsShapeMismatch(t *testing.T) {
	store, _ := testStore(t)
	twoSpeakers := testGenerator(t, 2)
	if err := store.Save("G", testCheckpoint(twoSpeakers), true); err != nil {
		t.Fatal(err)
	}

	fiveSpeakers := testGenerator(t, 5)
	before := fiveSpeakers.StateDict()
	if _, err := store.LoadInto("G", fiveSpeakers); !errors.Is(err, ErrIncompatible) {
		t.Fatalf("got %v, want ErrIncompatible", err)
	}
	// model untouched after rejection
	after := fiveSpeakers.StateDict()
	for name, vals := range before {
		for i := range vals {
			if after[name][i] != vals[i] {
				t.Fatal("model mutated by rejected load")
			}
		}
	}
}

func TestLoadPretrained(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pretrained_G.state")
	src := testGenerator(t, 1)
	if err := model.SaveState(path, src.StateDict()); err != nil {
		t.Fatal(err)
	}

	dst := testGenerator(t, 1)
	if err := LoadPretrained(path, dst); err != nil {
		t.Fatal(err)
	}

	mismatched := testGenerator(t, 4)
	if err := LoadPretrained(path, mismatched); !errors.Is(err, ErrIncompatible) {
		t.Fatalf("got %v, want ErrIncompatible", err)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice_best.model")
	gen := testGenerator(t, 2)

	snap := &Snapshot{
		Generator:  gen.StateDict(),
		SampleRate: 40000,
		Vocoder:    "hifigan",
		Epoch:      42,
		Step:       9000,
		Speakers:   2,
		Overtrain:  OvertrainInfo{BestLoss: 0.98, BestEpoch: 40, Stopped: true},
	}
	if err := SaveSnapshot(path, snap); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Vocoder != "hifigan" || loaded.Epoch != 42 || !loaded.Overtrain.Stopped {
		t.Errorf("snapshot fields: %+v", loaded)
	}
	if err := gen.LoadStateDict(loaded.Generator); err != nil {
		t.Fatal(err)
	}
}

func TestStore_Cleanup(t *testing.T) {
	store, exp := testStore(t)
	gen := testGenerator(t, 1)
	if err := store.Save("G", testCheckpoint(gen), true); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(exp.Dir, "filelist.txt")
	if err := os.WriteFile(keep, []byte("row"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(exp.CheckpointPath("G", Latest)); err == nil {
		t.Fatal("checkpoint survived cleanup")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatal("manifest removed by cleanup")
	}
}
