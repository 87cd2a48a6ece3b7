package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
extraction:
  f0_method: yin
  threads: 8
training:
  sample_rate: 48000
  total_epochs: 100
  optimizer: radam
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Extraction.F0Method != "yin" {
		t.Errorf("expected f0_method 'yin', got '%s'", cfg.Extraction.F0Method)
	}
	if cfg.Extraction.Threads != 8 {
		t.Errorf("expected threads 8, got %d", cfg.Extraction.Threads)
	}
	if cfg.Training.SampleRate != 48000 {
		t.Errorf("expected sample_rate 48000, got %d", cfg.Training.SampleRate)
	}
	if cfg.Training.Optimizer != "radam" {
		t.Errorf("expected optimizer 'radam', got '%s'", cfg.Training.Optimizer)
	}
	// untouched fields keep defaults
	if cfg.Training.BatchSize != 8 {
		t.Errorf("expected default batch_size 8, got %d", cfg.Training.BatchSize)
	}
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("URVC_EXP_DIR", "/data/experiments")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "experiments_dir: ${URVC_EXP_DIR}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ExperimentsDir != "/data/experiments" {
		t.Errorf("expected env-substituted dir, got '%s'", cfg.ExperimentsDir)
	}
}

func TestLoad_RejectsUnknownMethod(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "extraction:\n  f0_method: crepe-tiny\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for unknown f0_method")
	}
	if !strings.Contains(err.Error(), "f0_method") {
		t.Errorf("error should mention f0_method: %v", err)
	}
}

func TestValidate_Overtraining(t *testing.T) {
	cfg := Default()
	cfg.Training.Overtraining.Threshold = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero overtraining threshold")
	}

	cfg = Default()
	cfg.Training.Overtraining.Enabled = false
	cfg.Training.Overtraining.Threshold = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled detector should not validate its threshold: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
