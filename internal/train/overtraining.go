package train

import (
	"fmt"
	"math"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/checkpoint"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
)

// Detector watches per-epoch average losses and decides when further
// training stops helping. The generator gets Threshold consecutive
// non-improving epochs; the discriminator gets DiscBudgetFactor times that,
// since its loss is noisier. An epoch only counts as improved when it beats
// the best seen value by more than MinDelta.
type Detector struct {
	enabled    bool
	threshold  int
	minDelta   float64
	discBudget int

	BestGen         checkpoint.Best
	BestDisc        checkpoint.Best
	GenStallEpochs  int
	DiscStallEpochs int
}

func NewDetector(cfg config.OvertrainingConfig) *Detector {
	return &Detector{
		enabled:    cfg.Enabled,
		threshold:  cfg.Threshold,
		minDelta:   cfg.MinDelta,
		discBudget: cfg.DiscBudgetFactor * cfg.Threshold,
		BestGen:    checkpoint.Best{Value: math.Inf(1)},
		BestDisc:   checkpoint.Best{Value: math.Inf(1)},
	}
}

// Restore reloads detector state from a resumed checkpoint.
func (d *Detector) Restore(ck *checkpoint.Checkpoint) {
	if ck.BestGen.Epoch > 0 {
		d.BestGen = ck.BestGen
	}
	if ck.BestDisc.Epoch > 0 {
		d.BestDisc = ck.BestDisc
	}
	d.GenStallEpochs = ck.ConsecutiveNonImprove
	d.DiscStallEpochs = ck.ConsecutiveDiscNonImprove
}

// SaveTo copies detector state into a checkpoint about to be written.
func (d *Detector) SaveTo(ck *checkpoint.Checkpoint) {
	ck.BestGen = d.BestGen
	ck.BestDisc = d.BestDisc
	ck.ConsecutiveNonImprove = d.GenStallEpochs
	ck.ConsecutiveDiscNonImprove = d.DiscStallEpochs
}

// Observe feeds one epoch's average losses. Improved reports whether the
// generator set a new best; stop is true once either stall budget runs out.
func (d *Detector) Observe(epoch int, genLoss, discLoss float64) (improved, stop bool, reason string) {
	if genLoss < d.BestGen.Value-d.minDelta {
		d.BestGen = checkpoint.Best{Value: genLoss, Epoch: epoch}
		d.GenStallEpochs = 0
		improved = true
	} else {
		d.GenStallEpochs++
	}
	if discLoss < d.BestDisc.Value-d.minDelta {
		d.BestDisc = checkpoint.Best{Value: discLoss, Epoch: epoch}
		d.DiscStallEpochs = 0
	} else {
		d.DiscStallEpochs++
	}

	if !d.enabled {
		return improved, false, ""
	}
	if d.GenStallEpochs >= d.threshold {
		return improved, true, fmt.Sprintf(
			"generator loss has not improved for %d epochs (best %.4f at epoch %d)",
			d.GenStallEpochs, d.BestGen.Value, d.BestGen.Epoch)
	}
	if d.DiscStallEpochs >= d.discBudget {
		return improved, true, fmt.Sprintf(
			"discriminator loss has not improved for %d epochs (best %.4f at epoch %d)",
			d.DiscStallEpochs, d.BestDisc.Value, d.BestDisc.Epoch)
	}
	return improved, false, ""
}
