package feature

import "math"

// MelFilterbank represents the triangular Mel-spaced filterbank.
type MelFilterbank struct {
	Filters [][]float64 // [numFilters][fftSize/2+1]
}

// NewMelFilterbank constructs the filterbank. highFreq of zero means
// sampleRate/2.
func NewMelFilterbank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) *MelFilterbank {
	if highFreq <= 0 {
		highFreq = float64(sampleRate) / 2
	}
	nBins := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	// numFilters+2 equally spaced points on the Mel scale
	melPoints := make([]float64, numFilters+2)
	step := (highMel - lowMel) / float64(numFilters+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*step
	}

	// Convert to Hz and then to FFT bin indices
	binIndices := make([]int, numFilters+2)
	for i, m := range melPoints {
		freq := melToHz(m)
		binIndices[i] = int(math.Floor(freq * float64(fftSize+1) / float64(sampleRate)))
	}

	// Triangular filters
	filters := make([][]float64, numFilters)
	for i := 0; i < numFilters; i++ {
		filters[i] = make([]float64, nBins)
		left := binIndices[i]
		center := binIndices[i+1]
		right := binIndices[i+2]

		for j := left; j < center && j < nBins; j++ {
			if center != left && j >= 0 {
				filters[i][j] = float64(j-left) / float64(center-left)
			}
		}
		for j := center; j <= right && j < nBins; j++ {
			if right != center && j >= 0 {
				filters[i][j] = float64(right-j) / float64(right-center)
			}
		}
	}

	return &MelFilterbank{Filters: filters}
}

// Apply multiplies the power spectrum through each filter and returns log
// Mel energies.
func (fb *MelFilterbank) Apply(powerSpec []float64) []float64 {
	energies := make([]float64, len(fb.Filters))
	for i, f := range fb.Filters {
		sum := 0.0
		n := len(powerSpec)
		if len(f) < n {
			n = len(f)
		}
		for j := 0; j < n; j++ {
			sum += powerSpec[j] * f[j]
		}
		if sum < 1e-30 {
			sum = 1e-30
		}
		energies[i] = math.Log(sum)
	}
	return energies
}

// MelSpectrogram computes the log-mel spectrogram of a waveform:
// Hann-windowed frames of fftSize with the given hop, passed through the
// filterbank. Result is [numFrames][numFilters].
func MelSpectrogram(samples []float64, fb *MelFilterbank, fftSize, hop int) [][]float64 {
	frames := Frame(samples, fftSize, hop)
	out := make([][]float64, len(frames))
	for i, frame := range frames {
		HannWindow(frame)
		out[i] = fb.Apply(PowerSpectrum(frame, fftSize))
	}
	return out
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10, mel/2595.0) - 1.0)
}
