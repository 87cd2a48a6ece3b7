package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/checkpoint"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/dataset"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/dist"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/progress"
)

// Outcome is a worker's terminal state. Workers always return one; they
// never abort the process themselves.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeOvertrained
	OutcomeCancelled
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeOvertrained:
		return "overtrained"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "fatal"
	}
}

// Worker drives one rank through the epoch loop.
type Worker struct {
	session  *Session
	recorder *EpochRecorder
	logger   *slog.Logger
}

func NewWorker(cfg config.Config, exp *experiment.Experiment, logger *slog.Logger,
	rank int, group *dist.Group) (*Worker, error) {

	session, err := NewSession(cfg, exp, logger, rank, group)
	if err != nil {
		return nil, err
	}
	return &Worker{
		session:  session,
		recorder: NewEpochRecorder(logger),
		logger:   logger,
	}, nil
}

// Run executes epochs until completion, overtraining stop, cancellation or
// a fatal error, and reports which.
func (w *Worker) Run(ctx context.Context) (Outcome, error) {
	s := w.session
	total := s.cfg.Training.TotalEpochs
	if s.epoch > total {
		w.logger.Info("checkpoint already at final epoch, nothing to do", "epoch", s.epoch-1)
		return OutcomeDone, nil
	}

	for ; s.epoch <= total; s.epoch++ {
		if ctx.Err() != nil {
			return OutcomeCancelled, ctx.Err()
		}

		err := s.loader.Epoch(s.epoch, func(_ int, items []*dataset.Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.trainStep(dataset.Collate(items))
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return OutcomeCancelled, err
			}
			return OutcomeFatal, fmt.Errorf("epoch %d: %w", s.epoch, err)
		}

		avgGen, avgDisc, err := s.evaluate()
		if err != nil {
			return OutcomeFatal, fmt.Errorf("epoch %d evaluation: %w", s.epoch, err)
		}

		var improved, stop bool
		var reason string
		if s.rank == 0 {
			improved, stop, reason = s.detector.Observe(s.epoch, avgGen, avgDisc)
		}
		// the stop decision is rank 0's; everyone else learns it here
		flags, err := s.group.AllReduceSum([]float64{boolToFloat(stop)})
		if err != nil {
			return OutcomeFatal, err
		}
		stop = flags[0] > 0

		if s.rank == 0 {
			if err := w.persist(improved, stop); err != nil {
				return OutcomeFatal, err
			}
		}
		w.recorder.Record(s.epoch, total, avgGen, avgDisc, s.lr)
		s.decayLR()

		if stop {
			if s.rank == 0 {
				w.logger.Warn("stopping early", "reason", reason)
				w.writeProgress("overtrained")
			}
			return OutcomeOvertrained, nil
		}
	}

	if s.rank == 0 {
		if err := checkpoint.SaveSnapshot(s.exp.SnapshotPath("final"), s.makeSnapshot(false)); err != nil {
			return OutcomeFatal, err
		}
		w.writeProgress("done")
		w.logger.Info("training complete", "epochs", total, "steps", s.step)
	}
	return OutcomeDone, nil
}

// persist handles the coordinator rank's end-of-epoch disk work: checkpoint
// cadence, the best-loss snapshot, optional per-epoch weights and the
// progress file.
func (w *Worker) persist(improved, stop bool) error {
	s := w.session
	t := s.cfg.Training

	onCadence := t.SaveEveryEpoch > 0 && s.epoch%t.SaveEveryEpoch == 0
	if onCadence || stop || s.epoch == t.TotalEpochs {
		if err := s.store.Save("G", s.makeCheckpoint("G"), t.SaveOnlyLatest); err != nil {
			return err
		}
		if err := s.store.Save("D", s.makeCheckpoint("D"), t.SaveOnlyLatest); err != nil {
			return err
		}
	}
	if improved {
		if err := checkpoint.SaveSnapshot(s.exp.SnapshotPath("best"), s.makeSnapshot(false)); err != nil {
			return err
		}
		w.logger.Info("new best model",
			"epoch", s.epoch, "loss", s.detector.BestGen.Value)
	}
	if t.SaveEveryWeights && onCadence {
		path := s.exp.SnapshotPath(strconv.Itoa(s.epoch))
		if err := checkpoint.SaveSnapshot(path, s.makeSnapshot(false)); err != nil {
			return err
		}
	}
	w.writeProgress("training")
	return nil
}

func (w *Worker) writeProgress(state string) {
	s := w.session
	err := progress.WriteTraining(s.exp.ProgressPath(), progress.Training{
		State:       state,
		Epoch:       s.epoch,
		TotalEpochs: s.cfg.Training.TotalEpochs,
		Step:        s.step,
		AvgGenLoss:  s.genWindow.Mean(),
		BestLoss:    s.detector.BestGen.Value,
		BestEpoch:   s.detector.BestGen.Epoch,
	})
	if err != nil {
		w.logger.Warn("failed to write progress", "error", err)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
