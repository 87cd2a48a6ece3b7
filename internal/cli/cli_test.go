package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func findCommand(name string) bool {
	for _, c := range rootCmd.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"extract", "filelist", "train", "stop", "status", "watch", "config",
		"_extract-shard", "_train-worker",
	} {
		if !findCommand(name) {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestWorkerCommandsHidden(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		internal := len(c.Name()) > 0 && c.Name()[0] == '_'
		if internal && !c.Hidden {
			t.Errorf("internal command %q is visible", c.Name())
		}
	}
}

func TestLoadConfig_DefaultValidates(t *testing.T) {
	cfgFile = ""
	if _, err := loadConfig(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfig_BadFileIsFatal(t *testing.T) {
	defer func() { cfgFile = "" }()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("extraction:\n  f0_method: dio\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgFile = path
	if _, err := loadConfig(); err == nil {
		t.Fatal("invalid config file must not fall back to defaults")
	} else if !strings.Contains(err.Error(), "f0_method") {
		t.Errorf("error should name the bad field: %v", err)
	}

	cfgFile = filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := loadConfig(); err == nil {
		t.Fatal("missing config file must not fall back to defaults")
	}
}
