package train

import (
	"log/slog"
	"time"
)

// EpochRecorder logs wall-clock duration and averaged losses per epoch.
type EpochRecorder struct {
	logger *slog.Logger
	last   time.Time
}

func NewEpochRecorder(logger *slog.Logger) *EpochRecorder {
	return &EpochRecorder{logger: logger, last: time.Now()}
}

func (r *EpochRecorder) Record(epoch, totalEpochs int, avgGen, avgDisc, lr float64) {
	elapsed := time.Since(r.last).Round(time.Millisecond)
	r.last = time.Now()
	r.logger.Info("epoch complete",
		"epoch", epoch,
		"total_epochs", totalEpochs,
		"duration", elapsed,
		"avg_loss_gen", avgGen,
		"avg_loss_disc", avgDisc,
		"lr", lr)
}
