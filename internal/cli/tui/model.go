package tui

import (
	"time"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/monitor"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/progress"
)

// Config holds TUI configuration
type Config struct {
	Experiment      *experiment.Experiment
	RefreshInterval time.Duration
}

// Model represents the TUI state
type Model struct {
	config Config

	// Data polled from the experiment directory
	training *progress.Training
	shards   []progress.ExtractionShard
	system   *monitor.SystemState

	// UI state
	width       int
	height      int
	loading     bool
	err         error
	lastUpdated time.Time
}

// NewModel creates a new TUI model
func NewModel(cfg Config) Model {
	return Model{
		config:  cfg,
		loading: true,
	}
}
