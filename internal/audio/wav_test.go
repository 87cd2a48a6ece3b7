package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWAV_RoundTrip(t *testing.T) {
	samples := make([]float64, 1600)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/16000)
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteWAVFile(path, samples, 16000); err != nil {
		t.Fatal(err)
	}

	got, h, err := ReadWAVFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", h.SampleRate)
	}
	if h.NumSamples != len(samples) {
		t.Errorf("expected %d samples, got %d", len(samples), h.NumSamples)
	}
	for i := range samples {
		if math.Abs(got[i]-samples[i]) > 1.0/32768.0+1e-9 {
			t.Fatalf("sample %d: got %f, want %f", i, got[i], samples[i])
		}
	}
}

func TestWriteWAV_ClampsOverrange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteWAVFile(path, []float64{2.0, -2.0, 0}, 48000); err != nil {
		t.Fatal(err)
	}

	got, h, err := ReadWAVFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h.SampleRate != 48000 {
		t.Errorf("expected sample rate 48000, got %d", h.SampleRate)
	}
	if got[0] < 0.99 || got[1] > -0.99 {
		t.Errorf("expected clamped samples, got %v", got)
	}
}

func TestSampleRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sr.wav")
	if err := WriteWAVFile(path, make([]float64, 10), 40000); err != nil {
		t.Fatal(err)
	}
	sr, err := SampleRate(path)
	if err != nil {
		t.Fatal(err)
	}
	if sr != 40000 {
		t.Errorf("expected 40000, got %d", sr)
	}
}
