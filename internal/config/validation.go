package config

import (
	"errors"
	"fmt"
)

// F0Methods lists the supported pitch estimation algorithms: one neural
// predictor and two signal-based estimators.
var F0Methods = map[string]bool{
	"rmvpe": true,
	"yin":   true,
	"acf":   true,
}

// Optimizers lists the supported optimizer algorithm families.
var Optimizers = map[string]bool{
	"adamw": true,
	"radam": true,
}

var sampleRates = map[int]bool{
	32000: true,
	40000: true,
	48000: true,
}

func (c *Config) Validate() error {
	var errs []error

	if c.ExperimentsDir == "" {
		errs = append(errs, fmt.Errorf("experiments_dir cannot be empty"))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Devices.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("devices: %w", err))
	}

	if err := c.Extraction.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("extraction: %w", err))
	}

	if err := c.Filelist.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("filelist: %w", err))
	}

	if err := c.Training.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("training: %w", err))
	}

	if err := c.Model.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("model: %w", err))
	}

	return errors.Join(errs...)
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", l.Format)
	}

	return nil
}

func (d *DeviceConfig) Validate() error {
	validTypes := map[string]bool{
		"auto": true,
		"cpu":  true,
		"gpu":  true,
	}
	if !validTypes[d.Type] {
		return fmt.Errorf("invalid device type: %s (valid: auto, cpu, gpu)", d.Type)
	}
	for _, id := range d.IDs {
		if id < 0 {
			return fmt.Errorf("device ids must be non-negative, got %d", id)
		}
	}
	return nil
}

func (e *ExtractionConfig) Validate() error {
	var errs []error

	if !F0Methods[e.F0Method] {
		errs = append(errs, fmt.Errorf("unknown f0_method: %s (valid: rmvpe, yin, acf)", e.F0Method))
	}
	if e.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("sample_rate must be at least 8000, got %d", e.SampleRate))
	}
	if e.HopLength < 1 {
		errs = append(errs, fmt.Errorf("hop_length must be positive, got %d", e.HopLength))
	}
	if e.EmbedderModel == "" && e.CustomEmbedderModel == "" {
		errs = append(errs, fmt.Errorf("either embedder_model or custom_embedder_model must be set"))
	}
	if e.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", e.Threads))
	}

	return errors.Join(errs...)
}

func (f *FilelistConfig) Validate() error {
	if f.IncludeMutes < 0 {
		return fmt.Errorf("include_mutes must be non-negative, got %d", f.IncludeMutes)
	}
	return nil
}

func (t *TrainingConfig) Validate() error {
	var errs []error

	if !sampleRates[t.SampleRate] {
		errs = append(errs, fmt.Errorf("unsupported sample_rate: %d (valid: 32000, 40000, 48000)", t.SampleRate))
	}
	if !Optimizers[t.Optimizer] {
		errs = append(errs, fmt.Errorf("unknown optimizer: %s (valid: adamw, radam)", t.Optimizer))
	}
	if t.TotalEpochs < 1 {
		errs = append(errs, fmt.Errorf("total_epochs must be at least 1, got %d", t.TotalEpochs))
	}
	if t.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1, got %d", t.BatchSize))
	}
	if t.SaveEveryEpoch < 1 {
		errs = append(errs, fmt.Errorf("save_every_epoch must be at least 1, got %d", t.SaveEveryEpoch))
	}
	if t.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive"))
	}
	if t.LRDecay <= 0 || t.LRDecay > 1 {
		errs = append(errs, fmt.Errorf("lr_decay must be in (0, 1]"))
	}
	if t.Overtraining.Enabled {
		if t.Overtraining.Threshold < 1 {
			errs = append(errs, fmt.Errorf("overtraining.threshold must be at least 1"))
		}
		if t.Overtraining.MinDelta < 0 {
			errs = append(errs, fmt.Errorf("overtraining.min_delta must be non-negative"))
		}
		if t.Overtraining.DiscBudgetFactor < 1 {
			errs = append(errs, fmt.Errorf("overtraining.disc_budget_factor must be at least 1"))
		}
	}

	return errors.Join(errs...)
}

func (m *ModelConfig) Validate() error {
	var errs []error

	if m.FilterLength < 2 || m.FilterLength&(m.FilterLength-1) != 0 {
		errs = append(errs, fmt.Errorf("filter_length must be a power of two, got %d", m.FilterLength))
	}
	if m.HopLength < 1 {
		errs = append(errs, fmt.Errorf("hop_length must be positive, got %d", m.HopLength))
	}
	if m.SegmentSize < m.HopLength {
		errs = append(errs, fmt.Errorf("segment_size must be at least hop_length"))
	}
	if m.MelChannels < 1 {
		errs = append(errs, fmt.Errorf("mel_channels must be positive, got %d", m.MelChannels))
	}
	if m.EmbeddingDim < 1 {
		errs = append(errs, fmt.Errorf("embedding_dim must be positive, got %d", m.EmbeddingDim))
	}

	return errors.Join(errs...)
}
