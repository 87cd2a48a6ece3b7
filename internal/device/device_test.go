package device

import (
	"io"
	"log/slog"
	"testing"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestList_CPUType(t *testing.T) {
	devices, err := List(config.DeviceConfig{Type: "cpu"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Type != CPU {
		t.Errorf("expected single cpu device, got %v", devices)
	}
}

func TestList_AutoFallsBackToCPU(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "")
	devices, err := List(config.DeviceConfig{Type: "auto"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Type != CPU {
		t.Errorf("expected cpu fallback, got %v", devices)
	}
}

func TestList_GPURequestedButUnavailable(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "")
	_, err := List(config.DeviceConfig{Type: "gpu"}, discard())
	if err == nil {
		t.Fatal("expected error when gpus requested but unavailable")
	}
}

func TestList_GPUSelection(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "0,1")
	devices, err := List(config.DeviceConfig{Type: "gpu", IDs: []int{1}}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].String() != "cuda:1" {
		t.Errorf("expected [cuda:1], got %v", Strings(devices))
	}

	_, err = List(config.DeviceConfig{Type: "gpu", IDs: []int{5}}, discard())
	if err == nil {
		t.Error("expected error for out-of-range gpu id")
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("cuda:2")
	if err != nil || d.Type != GPU || d.Index != 2 {
		t.Errorf("Parse(cuda:2) = %v, %v", d, err)
	}
	d, err = Parse("cpu")
	if err != nil || d.Type != CPU {
		t.Errorf("Parse(cpu) = %v, %v", d, err)
	}
	if _, err := Parse("tpu:0"); err == nil {
		t.Error("expected error for unknown device string")
	}
}

func TestThreadBudget(t *testing.T) {
	cases := []struct {
		threads, devices, want int
	}{
		{8, 2, 4},
		{4, 8, 1},
		{0, 1, 1},
		{6, 0, 6},
	}
	for _, c := range cases {
		if got := ThreadBudget(c.threads, c.devices); got != c.want {
			t.Errorf("ThreadBudget(%d, %d) = %d, want %d", c.threads, c.devices, got, c.want)
		}
	}
}
