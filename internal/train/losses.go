package train

import (
	"math"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/feature"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
)

// windowCap bounds every rolling loss window.
const windowCap = 50

// LossWindow is a fixed-capacity FIFO over scalar observations. Pushing past
// capacity evicts the oldest value; the window never grows beyond cap.
type LossWindow struct {
	vals  []float64
	start int
	count int
}

func NewLossWindow() *LossWindow {
	return &LossWindow{vals: make([]float64, windowCap)}
}

func (w *LossWindow) Push(v float64) {
	idx := (w.start + w.count) % len(w.vals)
	w.vals[idx] = v
	if w.count < len(w.vals) {
		w.count++
	} else {
		w.start = (w.start + 1) % len(w.vals)
	}
}

func (w *LossWindow) Len() int { return w.count }

func (w *LossWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.count; i++ {
		sum += w.vals[(w.start+i)%len(w.vals)]
	}
	return sum / float64(w.count)
}

// DiscriminatorLoss is the least-squares adversarial objective: real scores
// pulled to 1, generated scores pulled to 0, summed over scales.
func DiscriminatorLoss(out *model.DiscOutput) float64 {
	var loss float64
	for si := range out.ScoresReal {
		for _, d := range out.ScoresReal[si] {
			loss += (1 - d) * (1 - d)
		}
		for _, d := range out.ScoresGen[si] {
			loss += d * d
		}
	}
	n := scoreCount(out.ScoresReal) + scoreCount(out.ScoresGen)
	if n == 0 {
		return 0
	}
	return loss / float64(n)
}

// GeneratorAdvLoss pulls generated scores toward 1.
func GeneratorAdvLoss(scoresGen [][]float64) float64 {
	var loss float64
	n := 0
	for _, scale := range scoresGen {
		for _, d := range scale {
			loss += (1 - d) * (1 - d)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return loss / float64(n)
}

func scoreCount(scales [][]float64) int {
	n := 0
	for _, s := range scales {
		n += len(s)
	}
	return n
}

// FeatureLoss is the L1 distance between real and generated feature maps,
// scaled by 2 to match the adversarial term's magnitude.
func FeatureLoss(fmapReal, fmapGen [][][]float64) float64 {
	var loss float64
	n := 0
	for si := range fmapReal {
		limit := len(fmapReal[si])
		if len(fmapGen[si]) < limit {
			limit = len(fmapGen[si])
		}
		for wi := 0; wi < limit; wi++ {
			fr, fg := fmapReal[si][wi], fmapGen[si][wi]
			for k := range fr {
				loss += math.Abs(fr[k] - fg[k])
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return 2 * loss / float64(n)
}

// KLLoss is the divergence between the posterior and prior latent
// distributions, averaged over masked frames.
func KLLoss(l *model.Latent) float64 {
	var loss, frames float64
	for i := range l.ZP {
		for f := range l.ZP[i] {
			m := l.Mask[i][f]
			if m == 0 {
				continue
			}
			zp, logsQ := l.ZP[i][f], l.LogsQ[i][f]
			mp, logsP := l.MP[i][f], l.LogsP[i][f]
			d := zp - mp
			kl := logsP - logsQ - 0.5 + 0.5*d*d*math.Exp(-2*logsP)
			loss += kl * m
			frames += m
		}
	}
	if frames == 0 {
		return 0
	}
	return loss / frames
}

// MelLoss is the L1 distance between log-mel spectrograms of real and
// generated audio, averaged over frames and mel bands.
func MelLoss(real, generated [][]float64, fb *feature.MelFilterbank, fftSize, hop int) float64 {
	var loss float64
	n := 0
	for i := range real {
		mr := feature.MelSpectrogram(real[i], fb, fftSize, hop)
		mg := feature.MelSpectrogram(generated[i], fb, fftSize, hop)
		frames := len(mr)
		if len(mg) < frames {
			frames = len(mg)
		}
		for f := 0; f < frames; f++ {
			for k := range mr[f] {
				loss += math.Abs(mr[f][k] - mg[f][k])
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return loss / float64(n)
}

// GradNorm is the global L2 norm over all parameter gradients.
func GradNorm(params []*model.Parameter) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}
