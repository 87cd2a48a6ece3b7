package extract

import (
	"fmt"
	"math"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/audio"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/model"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/npy"
)

const (
	f0Min  = 50.0
	f0Max  = 1100.0
	f0Bins = 256
)

// PitchExtractor computes the continuous and quantized pitch artifacts for
// one utterance. The neural estimator is shared per process and loaded
// lazily on first use; the signal-based estimators carry no state.
type PitchExtractor struct {
	method     string
	sampleRate int
	hopLength  int

	predictor model.PitchPredictor
}

// NewPitchExtractor fails fast on a method name it does not implement.
func NewPitchExtractor(method string, sampleRate, hopLength int) (*PitchExtractor, error) {
	switch method {
	case "rmvpe", "yin", "acf":
	default:
		return nil, fmt.Errorf("unknown pitch method %q", method)
	}
	return &PitchExtractor{
		method:     method,
		sampleRate: sampleRate,
		hopLength:  hopLength,
	}, nil
}

// ComputeF0 returns one pitch value per hop frame, zero where unvoiced.
func (p *PitchExtractor) ComputeF0(samples []float64) []float64 {
	switch p.method {
	case "rmvpe":
		if p.predictor == nil {
			p.predictor = model.LoadRMVPE(f0Min, f0Max)
		}
		return p.predictor.Infer(samples, p.sampleRate, p.hopLength)
	case "yin":
		return p.yin(samples)
	default:
		return p.acf(samples)
	}
}

// InterpolateF0 fills unvoiced gaps linearly between the surrounding voiced
// frames. Leading and trailing gaps take the nearest voiced value. A fully
// unvoiced curve stays zero.
func InterpolateF0(f0 []float64) []float64 {
	out := make([]float64, len(f0))
	copy(out, f0)

	first := -1
	for i, v := range out {
		if v > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return out
	}
	for i := 0; i < first; i++ {
		out[i] = out[first]
	}

	last := first
	for i := first + 1; i < len(out); i++ {
		if out[i] <= 0 {
			continue
		}
		if gap := i - last; gap > 1 {
			step := (out[i] - out[last]) / float64(gap)
			for j := last + 1; j < i; j++ {
				out[j] = out[last] + step*float64(j-last)
			}
		}
		last = i
	}
	for i := last + 1; i < len(out); i++ {
		out[i] = out[last]
	}
	return out
}

// CoarseF0 quantizes a pitch curve onto a mel-spaced grid of 256 bins,
// clipped to [1, 254]. Unvoiced frames map to bin 1.
func CoarseF0(f0 []float64) []int64 {
	melMin := hzToMel(f0Min)
	melMax := hzToMel(f0Max)
	out := make([]int64, len(f0))
	for i, v := range f0 {
		if v <= 0 {
			out[i] = 1
			continue
		}
		mel := hzToMel(v)
		bin := math.Round((mel-melMin)*(f0Bins-2)/(melMax-melMin)) + 1
		if bin < 1 {
			bin = 1
		} else if bin > f0Bins-2 {
			bin = f0Bins - 2
		}
		out[i] = int64(bin)
	}
	return out
}

func hzToMel(hz float64) float64 {
	return 1127 * math.Log(1+hz/700)
}

// ProcessItem computes and persists both pitch artifacts for one utterance.
// The full curve is written before the coarse one so a crash between the two
// leaves the item incomplete rather than half-quantized.
func (p *PitchExtractor) ProcessItem(item WorkItem) error {
	samples, _, err := audio.ReadWAVFile(item.WavPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", item.WavPath, err)
	}
	f0 := p.ComputeF0(samples)
	full := InterpolateF0(f0)
	if err := npy.SaveFloat1D(item.FullPitchPath, full); err != nil {
		return fmt.Errorf("save full pitch: %w", err)
	}
	if err := npy.SaveInt1D(item.CoarsePitchPath, CoarseF0(full)); err != nil {
		return fmt.Errorf("save coarse pitch: %w", err)
	}
	return nil
}

// yin is the difference-function estimator of de Cheveigné and Kawahara,
// evaluated per hop frame with a 25 ms window.
func (p *PitchExtractor) yin(samples []float64) []float64 {
	windowLen := p.sampleRate / 40
	tauMin := int(float64(p.sampleRate) / f0Max)
	tauMax := int(float64(p.sampleRate) / f0Min)
	if tauMax >= windowLen {
		tauMax = windowLen - 1
	}
	const threshold = 0.15

	numFrames := (len(samples) + p.hopLength - 1) / p.hopLength
	f0 := make([]float64, numFrames)
	diff := make([]float64, tauMax+1)
	cmnd := make([]float64, tauMax+1)

	for fi := 0; fi < numFrames; fi++ {
		start := fi * p.hopLength
		if start+windowLen+tauMax >= len(samples) {
			break
		}
		frame := samples[start:]

		for tau := 1; tau <= tauMax; tau++ {
			var sum float64
			for j := 0; j < windowLen; j++ {
				d := frame[j] - frame[j+tau]
				sum += d * d
			}
			diff[tau] = sum
		}

		// cumulative mean normalized difference
		running := 0.0
		cmnd[0] = 1
		for tau := 1; tau <= tauMax; tau++ {
			running += diff[tau]
			if running == 0 {
				cmnd[tau] = 1
			} else {
				cmnd[tau] = diff[tau] * float64(tau) / running
			}
		}

		for tau := tauMin; tau <= tauMax; tau++ {
			if cmnd[tau] < threshold {
				for tau+1 <= tauMax && cmnd[tau+1] < cmnd[tau] {
					tau++
				}
				f0[fi] = float64(p.sampleRate) / float64(tau)
				break
			}
		}
	}
	return f0
}

// acf picks the strongest normalized autocorrelation peak in the pitch band.
func (p *PitchExtractor) acf(samples []float64) []float64 {
	windowLen := p.sampleRate / 40
	lagMin := int(float64(p.sampleRate) / f0Max)
	lagMax := int(float64(p.sampleRate) / f0Min)
	if lagMax >= windowLen {
		lagMax = windowLen - 1
	}
	const voicedRatio = 0.5

	numFrames := (len(samples) + p.hopLength - 1) / p.hopLength
	f0 := make([]float64, numFrames)

	for fi := 0; fi < numFrames; fi++ {
		start := fi * p.hopLength
		if start+windowLen+lagMax >= len(samples) {
			break
		}
		frame := samples[start:]

		var energy float64
		for j := 0; j < windowLen; j++ {
			energy += frame[j] * frame[j]
		}
		if energy == 0 {
			continue
		}

		bestLag, bestCorr := 0, 0.0
		for lag := lagMin; lag <= lagMax; lag++ {
			var corr float64
			for j := 0; j < windowLen; j++ {
				corr += frame[j] * frame[j+lag]
			}
			corr /= energy
			if corr > bestCorr {
				bestCorr = corr
				bestLag = lag
			}
		}
		if bestLag > 0 && bestCorr >= voicedRatio {
			f0[fi] = float64(p.sampleRate) / float64(bestLag)
		}
	}
	return f0
}
