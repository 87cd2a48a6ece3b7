package feature

import "math"

// Frame splits samples into overlapping frames.
// frameLen and frameShift are in number of samples. The signal is padded
// with zeros at the tail so every hop position yields a frame.
func Frame(samples []float64, frameLen, frameShift int) [][]float64 {
	if frameShift < 1 || frameLen < 1 {
		return nil
	}
	numFrames := (len(samples) + frameShift - 1) / frameShift
	if numFrames == 0 {
		return nil
	}
	frames := make([][]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * frameShift
		frame := make([]float64, frameLen)
		end := start + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		if start < len(samples) {
			copy(frame, samples[start:end])
		}
		frames[i] = frame
	}
	return frames
}

// HannWindow applies a Hann window in-place.
func HannWindow(frame []float64) {
	n := len(frame)
	if n < 2 {
		return
	}
	for i := range frame {
		frame[i] *= 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
}
