package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/logger"
)

var (
	// Global flags
	cfgFile string
	jsonOut bool
	verbose bool

	// Version info (set from main)
	Version = "0.1.0"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "urvc",
	Short: "Voice conversion model training pipeline",
	Long: `Urvc trains per-speaker voice conversion models from sliced audio:
feature extraction (pitch and content embeddings), manifest assembly,
and multi-process adversarial training with checkpointing, resume and
overtraining detection.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// SetVersion sets the version for the CLI
func SetVersion(v string) {
	Version = v
	rootCmd.Version = v
}

// loadConfig resolves and validates the effective configuration. A config
// file that fails to read, parse or validate is fatal, never papered over
// with defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logger.New(level, cfg.Logging.Format)
}

func openExperiment(cfg *config.Config, name string) *experiment.Experiment {
	return experiment.New(cfg.ExperimentsDir, name)
}
