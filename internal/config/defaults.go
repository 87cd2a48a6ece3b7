package config

func Default() *Config {
	return &Config{
		ExperimentsDir: "training_models",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Devices: DeviceConfig{
			Type: "auto",
		},
		Extraction: ExtractionConfig{
			SampleRate:    16000,
			HopLength:     160,
			F0Method:      "rmvpe",
			EmbedderModel: "contentvec",
			Threads:       4,
		},
		Filelist: FilelistConfig{
			IncludeMutes: 2,
		},
		Training: TrainingConfig{
			SampleRate:     40000,
			Vocoder:        "hifigan",
			TotalEpochs:    500,
			BatchSize:      8,
			SaveEveryEpoch: 10,
			SaveOnlyLatest: true,
			Optimizer:      "adamw",
			LearningRate:   1e-4,
			LRDecay:        0.999875,
			Beta1:          0.8,
			Beta2:          0.99,
			Eps:            1e-9,
			Seed:           1234,
			Overtraining: OvertrainingConfig{
				Enabled:          true,
				Threshold:        50,
				MinDelta:         0.004,
				DiscBudgetFactor: 2,
			},
		},
		Model: ModelConfig{
			FilterLength: 2048,
			HopLength:    400,
			SegmentSize:  12800,
			MelChannels:  125,
			MelFmin:      0,
			MelFmax:      0, // 0 means sample_rate/2
			EmbeddingDim: 768,
			CMel:         45,
			CKL:          1.0,
		},
	}
}
