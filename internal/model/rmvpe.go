package model

import (
	"math"
	"sync"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/feature"
)

const (
	rmvpeFFT       = 2048
	rmvpeHarmonics = 4
	rmvpeThreshold = 1e-6
)

// rmvpePredictor estimates frame-level pitch by harmonic summation over
// windowed frames. Harmonics are weighted 1/h so a subharmonic of the true
// pitch cannot outscore it. Unvoiced frames come back as zero.
type rmvpePredictor struct {
	fmin float64
	fmax float64
}

var (
	rmvpeOnce     sync.Once
	rmvpeInstance *rmvpePredictor
)

// LoadRMVPE returns the shared pitch predictor for this process.
func LoadRMVPE(fmin, fmax float64) PitchPredictor {
	rmvpeOnce.Do(func() {
		rmvpeInstance = &rmvpePredictor{fmin: fmin, fmax: fmax}
	})
	return rmvpeInstance
}

func (p *rmvpePredictor) Infer(samples []float64, sampleRate, hopLength int) []float64 {
	frames := feature.Frame(samples, rmvpeFFT, hopLength)
	f0 := make([]float64, len(frames))
	binHz := float64(sampleRate) / rmvpeFFT

	for i, frame := range frames {
		feature.HannWindow(frame)
		spec := feature.PowerSpectrum(frame, rmvpeFFT)

		lo := int(p.fmin / binHz)
		if lo < 1 {
			lo = 1
		}
		hi := int(p.fmax / binHz)
		if hi >= len(spec) {
			hi = len(spec) - 1
		}

		bestBin, bestVal := 0, 0.0
		var total float64
		for _, v := range spec {
			total += v
		}
		for b := lo; b <= hi; b++ {
			score := spec[b]
			for h := 2; h <= rmvpeHarmonics; h++ {
				hb := b * h
				if hb >= len(spec) {
					break
				}
				score += spec[hb] / float64(h)
			}
			if score > bestVal {
				bestVal = score
				bestBin = b
			}
		}

		// reject silence and frames with no tonal peak
		if bestBin == 0 || total < rmvpeThreshold {
			continue
		}
		peak := spec[bestBin]
		if peak < 2*total/float64(len(spec)) {
			continue
		}

		// parabolic interpolation around the winning bin
		refined := float64(bestBin)
		if bestBin > 0 && bestBin < len(spec)-1 {
			a, b, c := spec[bestBin-1], spec[bestBin], spec[bestBin+1]
			denom := a - 2*b + c
			if math.Abs(denom) > 1e-12 {
				refined += 0.5 * (a - c) / denom
			}
		}
		f0[i] = refined * binHz
	}
	return f0
}
