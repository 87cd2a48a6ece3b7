package experiment

import (
	"path/filepath"
	"testing"
)

func TestLayout(t *testing.T) {
	e := New("/data/training_models", "voice1")

	if e.Dir != filepath.Join("/data/training_models", "voice1") {
		t.Errorf("unexpected dir: %s", e.Dir)
	}
	if got := e.CoarsePitchDir("rmvpe"); got != filepath.Join(e.Dir, "f0_rmvpe") {
		t.Errorf("unexpected coarse pitch dir: %s", got)
	}
	if got := e.FullPitchDir("rmvpe"); got != filepath.Join(e.Dir, "f0_rmvpe_voiced") {
		t.Errorf("unexpected full pitch dir: %s", got)
	}
	if got := e.EmbeddingDir("contentvec"); got != filepath.Join(e.Dir, "contentvec_extracted") {
		t.Errorf("unexpected embedding dir: %s", got)
	}
	if got := e.CheckpointPath("G", "latest"); got != filepath.Join(e.Dir, "G_latest.ckpt") {
		t.Errorf("unexpected checkpoint path: %s", got)
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	e := New(t.TempDir(), "voice1")
	if err := e.EnsureDirs("rmvpe", "contentvec"); err != nil {
		t.Fatal(err)
	}

	err := e.UpdateMetadata(func(md *Metadata) {
		md.SampleRate = 40000
		md.EmbedderModel = "contentvec"
		md.SpeakersID = 3
	})
	if err != nil {
		t.Fatal(err)
	}

	md, err := e.ReadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if md.SampleRate != 40000 || md.EmbedderModel != "contentvec" || md.SpeakersID != 3 {
		t.Errorf("metadata mismatch: %+v", md)
	}
}

func TestMetadata_PIDRegistry(t *testing.T) {
	e := New(t.TempDir(), "voice1")
	if err := e.EnsureDirs("yin", "contentvec"); err != nil {
		t.Fatal(err)
	}

	if err := e.RegisterPIDs([]int{100, 200, 300}); err != nil {
		t.Fatal(err)
	}
	if err := e.RemovePID(200); err != nil {
		t.Fatal(err)
	}

	md, err := e.ReadMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if len(md.ProcessPIDs) != 2 || md.ProcessPIDs[0] != 100 || md.ProcessPIDs[1] != 300 {
		t.Errorf("expected [100 300], got %v", md.ProcessPIDs)
	}

	if err := e.ClearPIDs(); err != nil {
		t.Fatal(err)
	}
	md, _ = e.ReadMetadata()
	if len(md.ProcessPIDs) != 0 {
		t.Errorf("expected empty registry, got %v", md.ProcessPIDs)
	}

	// other fields survive PID updates
	if err := e.UpdateMetadata(func(md *Metadata) { md.SampleRate = 48000 }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterPIDs([]int{1}); err != nil {
		t.Fatal(err)
	}
	md, _ = e.ReadMetadata()
	if md.SampleRate != 48000 {
		t.Error("sample_rate lost across PID registration")
	}
}

func TestReadMetadata_Missing(t *testing.T) {
	e := New(t.TempDir(), "nope")
	md, err := e.ReadMetadata()
	if err != nil {
		t.Fatalf("missing metadata must not error: %v", err)
	}
	if md.SampleRate != 0 || len(md.ProcessPIDs) != 0 {
		t.Errorf("expected zero metadata, got %+v", md)
	}
}
