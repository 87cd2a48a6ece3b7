package train

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/checkpoint"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/dataset"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/dist"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/feature"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
)

// Session is one rank's live training state: models, optimizers, data,
// rolling windows and the resume bookkeeping.
type Session struct {
	cfg    config.Config
	exp    *experiment.Experiment
	logger *slog.Logger
	rank   int

	group    *dist.Group
	loader   *dataset.Loader
	rowCount int

	gen  model.Generator
	disc model.Discriminator
	optG Optimizer
	optD Optimizer

	store    *checkpoint.Store
	detector *Detector
	melFB    *feature.MelFilterbank

	epoch    int
	step     int
	lr       float64
	speakers int

	gradWindow *LossWindow
	discWindow *LossWindow
	fmWindow   *LossWindow
	klWindow   *LossWindow
	melWindow  *LossWindow
	genWindow  *LossWindow

	// per-epoch loss accumulators, reduced across ranks at evaluation
	epochGenSum  float64
	epochDiscSum float64
}

// NewSession builds a rank's session and either resumes from the newest
// checkpoint pair or cold-starts, optionally seeding from pretrained
// weights. The first manifest waveform's sample rate must match the
// configured training rate.
func NewSession(cfg config.Config, exp *experiment.Experiment, logger *slog.Logger,
	rank int, group *dist.Group) (*Session, error) {

	rows, err := dataset.ParseManifest(exp.FilelistPath())
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		sr, err := audio.SampleRate(rows[0].WavPath)
		if err != nil {
			return nil, fmt.Errorf("probe dataset sample rate: %w", err)
		}
		if sr != cfg.Training.SampleRate {
			return nil, fmt.Errorf("dataset sample rate %d does not match configured %d",
				sr, cfg.Training.SampleRate)
		}
	}

	loader, err := dataset.NewLoader(rows, cfg.Model.HopLength, cfg.Training.BatchSize,
		rank, group.World(), cfg.Training.Seed)
	if err != nil {
		return nil, err
	}

	md, err := exp.ReadMetadata()
	if err != nil {
		return nil, err
	}
	speakers := md.SpeakersID
	if speakers < 1 {
		speakers = 1
	}

	gen, err := model.NewGenerator(cfg.Model, cfg.Training.SampleRate, speakers,
		cfg.Training.Vocoder, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	disc := model.NewDiscriminator(cfg.Training.Seed + 1)

	melFmax := cfg.Model.MelFmax
	if melFmax <= 0 {
		melFmax = float64(cfg.Training.SampleRate) / 2
	}
	s := &Session{
		cfg:        cfg,
		exp:        exp,
		logger:     logger,
		rank:       rank,
		group:      group,
		loader:     loader,
		rowCount:   len(rows),
		gen:        gen,
		disc:       disc,
		store:      checkpoint.NewStore(exp, logger),
		detector:   NewDetector(cfg.Training.Overtraining),
		speakers:   speakers,
		epoch:      1,
		lr:         cfg.Training.LearningRate,
		gradWindow: NewLossWindow(),
		discWindow: NewLossWindow(),
		fmWindow:   NewLossWindow(),
		klWindow:   NewLossWindow(),
		melWindow:  NewLossWindow(),
		genWindow:  NewLossWindow(),
		melFB: feature.NewMelFilterbank(cfg.Model.MelChannels, cfg.Model.FilterLength,
			cfg.Training.SampleRate, cfg.Model.MelFmin, melFmax),
	}

	if err := s.restoreOrColdStart(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) restoreOrColdStart() error {
	ckG, err := s.store.LoadInto("G", s.gen)
	switch {
	case err == nil:
		return s.resumeFrom(ckG)
	case errors.Is(err, checkpoint.ErrNotFound):
		return s.coldStart()
	default:
		return err
	}
}

func (s *Session) resumeFrom(ckG *checkpoint.Checkpoint) error {
	ckD, err := s.store.LoadInto("D", s.disc)
	if err != nil {
		return fmt.Errorf("generator checkpoint present but discriminator failed: %w", err)
	}

	kind := ckG.OptimizerKind
	if kind == "" {
		kind = s.cfg.Training.Optimizer
	}
	if kind != s.cfg.Training.Optimizer {
		s.logger.Warn("checkpoint optimizer differs from config, keeping checkpoint's",
			"checkpoint", kind, "config", s.cfg.Training.Optimizer)
	}
	t := s.cfg.Training
	if s.optG, err = NewOptimizer(kind, t.Beta1, t.Beta2, t.Eps); err != nil {
		return err
	}
	if s.optD, err = NewOptimizer(kind, t.Beta1, t.Beta2, t.Eps); err != nil {
		return err
	}
	if err := s.optG.LoadState(ckG.Optimizer); err != nil {
		return err
	}
	if err := s.optD.LoadState(ckD.Optimizer); err != nil {
		return err
	}

	s.epoch = ckG.Epoch + 1
	s.step = ckG.Step
	s.lr = ckG.LearningRate
	s.detector.Restore(ckG)
	s.logger.Info("resumed from checkpoint",
		"epoch", ckG.Epoch, "step", ckG.Step, "lr", s.lr, "optimizer", kind)
	return nil
}

func (s *Session) coldStart() error {
	t := s.cfg.Training
	var err error
	if s.optG, err = NewOptimizer(t.Optimizer, t.Beta1, t.Beta2, t.Eps); err != nil {
		return err
	}
	if s.optD, err = NewOptimizer(t.Optimizer, t.Beta1, t.Beta2, t.Eps); err != nil {
		return err
	}

	if t.PretrainG != "" {
		if err := checkpoint.LoadPretrained(t.PretrainG, s.gen); err != nil {
			return err
		}
		s.logger.Info("loaded pretrained generator", "path", t.PretrainG)
	}
	if t.PretrainD != "" {
		if err := checkpoint.LoadPretrained(t.PretrainD, s.disc); err != nil {
			return err
		}
		s.logger.Info("loaded pretrained discriminator", "path", t.PretrainD)
	}
	s.logger.Info("starting fresh training run",
		"epochs", t.TotalEpochs, "batch_size", t.BatchSize, "optimizer", t.Optimizer)
	return nil
}

// realSegments cuts the ground-truth slices matching the generator's random
// segment offsets out of the batch waveforms.
func (s *Session) realSegments(b *model.Batch, sliceIDs []int) [][]float64 {
	hop := s.cfg.Model.HopLength
	segLen := s.cfg.Model.SegmentSize
	out := make([][]float64, len(b.Wave))
	for i, wave := range b.Wave {
		start := sliceIDs[i] * hop
		seg := make([]float64, segLen)
		if start < len(wave) {
			copy(seg, wave[start:])
		}
		out[i] = seg
	}
	return out
}

// trainStep runs the two-player update for one batch and feeds the rolling
// windows.
func (s *Session) trainStep(batch *model.Batch) error {
	genOut, err := s.gen.Forward(batch)
	if err != nil {
		return fmt.Errorf("generator forward: %w", err)
	}
	realSegs := s.realSegments(batch, genOut.SliceIDs)

	// discriminator update
	discOut, err := s.disc.Forward(realSegs, genOut.Waveform)
	if err != nil {
		return fmt.Errorf("discriminator forward: %w", err)
	}
	dLoss := DiscriminatorLoss(discOut)
	s.disc.ZeroGrad()
	s.disc.Backward(dLoss)
	s.optD.Step(s.disc.Parameters(), s.lr)

	// generator update against the refreshed discriminator
	discOut, err = s.disc.Forward(realSegs, genOut.Waveform)
	if err != nil {
		return fmt.Errorf("discriminator re-evaluation: %w", err)
	}
	advLoss := GeneratorAdvLoss(discOut.ScoresGen)
	fmLoss := FeatureLoss(discOut.FmapReal, discOut.FmapGen)
	melLoss := s.cfg.Model.CMel * MelLoss(realSegs, genOut.Waveform,
		s.melFB, s.cfg.Model.FilterLength, s.cfg.Model.HopLength)
	klLoss := s.cfg.Model.CKL * KLLoss(&genOut.Latent)
	gLoss := advLoss + fmLoss + melLoss + klLoss
	if math.IsNaN(gLoss) || math.IsInf(gLoss, 0) {
		return fmt.Errorf("non-finite generator loss at step %d", s.step)
	}

	s.gen.ZeroGrad()
	s.gen.Backward(gLoss)
	s.optG.Step(s.gen.Parameters(), s.lr)

	s.step++
	s.epochGenSum += gLoss
	s.epochDiscSum += dLoss
	s.gradWindow.Push(GradNorm(s.gen.Parameters()))
	s.discWindow.Push(dLoss)
	s.fmWindow.Push(fmLoss)
	s.klWindow.Push(klLoss)
	s.melWindow.Push(melLoss)
	s.genWindow.Push(gLoss)

	if s.rank == 0 && s.step%windowCap == 0 {
		s.logger.Info("training summary",
			"step", s.step,
			"lr", s.lr,
			"loss_gen", s.genWindow.Mean(),
			"loss_disc", s.discWindow.Mean(),
			"loss_fm", s.fmWindow.Mean(),
			"loss_mel", s.melWindow.Mean(),
			"loss_kl", s.klWindow.Mean(),
			"grad_norm", s.gradWindow.Mean())
	}
	return nil
}

// evaluate reduces epoch loss sums across the group and returns the global
// per-utterance averages.
func (s *Session) evaluate() (avgGen, avgDisc float64, err error) {
	sums, err := s.group.AllReduceSum([]float64{s.epochGenSum, s.epochDiscSum})
	if err != nil {
		return 0, 0, err
	}
	s.epochGenSum, s.epochDiscSum = 0, 0
	n := float64(s.rowCount)
	return sums[0] / n, sums[1] / n, nil
}

func (s *Session) decayLR() {
	s.lr *= s.cfg.Training.LRDecay
}

func (s *Session) makeCheckpoint(role string) *checkpoint.Checkpoint {
	var m model.Module
	var opt Optimizer
	if role == "G" {
		m, opt = s.gen, s.optG
	} else {
		m, opt = s.disc, s.optD
	}
	ck := &checkpoint.Checkpoint{
		OptimizerKind: opt.Kind(),
		Epoch:         s.epoch,
		Step:          s.step,
		LearningRate:  s.lr,
		Model:         m.StateDict(),
		Optimizer:     opt.State(),
	}
	s.detector.SaveTo(ck)
	return ck
}

func (s *Session) makeSnapshot(stopped bool) *checkpoint.Snapshot {
	return &checkpoint.Snapshot{
		Generator:  s.gen.StateDict(),
		SampleRate: s.cfg.Training.SampleRate,
		Vocoder:    s.cfg.Training.Vocoder,
		Epoch:      s.epoch,
		Step:       s.step,
		Speakers:   s.speakers,
		Overtrain: checkpoint.OvertrainInfo{
			BestLoss:  s.detector.BestGen.Value,
			BestEpoch: s.detector.BestGen.Epoch,
			Stopped:   stopped,
		},
	}
}
