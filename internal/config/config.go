package config

// Config is the full configuration for the training pipeline. One experiment
// (model-in-training) lives under ExperimentsDir/<name>.
type Config struct {
	ExperimentsDir string           `yaml:"experiments_dir"`
	Logging        LoggingConfig    `yaml:"logging"`
	Devices        DeviceConfig     `yaml:"devices"`
	Extraction     ExtractionConfig `yaml:"extraction"`
	Filelist       FilelistConfig   `yaml:"filelist"`
	Training       TrainingConfig   `yaml:"training"`
	Model          ModelConfig      `yaml:"model"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DeviceConfig selects the accelerator devices used for extraction and
// training. Type "auto" probes for GPUs and falls back to a single CPU
// device.
type DeviceConfig struct {
	Type string `yaml:"type"`
	IDs  []int  `yaml:"ids"`
}

type ExtractionConfig struct {
	// SampleRate is the rate of the 16k sliced audio used as extractor input.
	SampleRate int `yaml:"sample_rate"`
	// HopLength is the pitch frame hop in samples at SampleRate.
	HopLength int    `yaml:"hop_length"`
	F0Method  string `yaml:"f0_method"`
	// EmbedderModel names a bundled embedding model. CustomEmbedderModel, if
	// set, points at a user-supplied model file and takes precedence.
	EmbedderModel       string `yaml:"embedder_model"`
	CustomEmbedderModel string `yaml:"custom_embedder_model"`
	// Threads is the total thread budget, divided across devices.
	Threads int `yaml:"threads"`
}

type FilelistConfig struct {
	// IncludeMutes appends this many silence rows per speaker to the
	// training manifest. Zero disables the augmentation.
	IncludeMutes int `yaml:"include_mutes"`
}

type TrainingConfig struct {
	SampleRate       int     `yaml:"sample_rate"`
	Vocoder          string  `yaml:"vocoder"`
	TotalEpochs      int     `yaml:"total_epochs"`
	BatchSize        int     `yaml:"batch_size"`
	SaveEveryEpoch   int     `yaml:"save_every_epoch"`
	SaveOnlyLatest   bool    `yaml:"save_only_latest"`
	SaveEveryWeights bool    `yaml:"save_every_weights"`
	PretrainG        string  `yaml:"pretrain_g"`
	PretrainD        string  `yaml:"pretrain_d"`
	Optimizer        string  `yaml:"optimizer"`
	LearningRate     float64 `yaml:"learning_rate"`
	LRDecay          float64 `yaml:"lr_decay"`
	Beta1            float64 `yaml:"beta1"`
	Beta2            float64 `yaml:"beta2"`
	Eps              float64 `yaml:"eps"`
	Seed             int64   `yaml:"seed"`
	// Cleanup removes checkpoints and eval artifacts left by a prior run
	// before training starts.
	Cleanup      bool               `yaml:"cleanup"`
	Overtraining OvertrainingConfig `yaml:"overtraining"`
}

// OvertrainingConfig is the stop policy over per-epoch average losses.
// MinDelta is the improvement margin: an epoch counts as improved only when
// it beats the best loss by more than MinDelta. The discriminator budget is
// DiscBudgetFactor times Threshold.
type OvertrainingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Threshold        int     `yaml:"threshold"`
	MinDelta         float64 `yaml:"min_delta"`
	DiscBudgetFactor int     `yaml:"disc_budget_factor"`
}

// ModelConfig carries the acoustic frame geometry shared by the generator,
// the mel loss and the dataset collation.
type ModelConfig struct {
	FilterLength int     `yaml:"filter_length"`
	HopLength    int     `yaml:"hop_length"`
	SegmentSize  int     `yaml:"segment_size"`
	MelChannels  int     `yaml:"mel_channels"`
	MelFmin      float64 `yaml:"mel_fmin"`
	MelFmax      float64 `yaml:"mel_fmax"`
	EmbeddingDim int     `yaml:"embedding_dim"`
	CMel         float64 `yaml:"c_mel"`
	CKL          float64 `yaml:"c_kl"`
}
