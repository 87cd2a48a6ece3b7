// Package device enumerates the accelerator devices available for
// extraction and training, and handles process-level liveness checks for
// the cancellation path.
package device

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
)

type Type string

const (
	CPU Type = "cpu"
	GPU Type = "gpu"
)

// Device identifies one compute device a worker process is pinned to.
type Device struct {
	Type  Type
	Index int
}

func (d Device) String() string {
	if d.Type == GPU {
		return fmt.Sprintf("cuda:%d", d.Index)
	}
	return "cpu"
}

// Parse converts a device string ("cpu", "cuda:1") back into a Device.
func Parse(s string) (Device, error) {
	if s == "cpu" {
		return Device{Type: CPU}, nil
	}
	if idx, ok := strings.CutPrefix(s, "cuda:"); ok {
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return Device{}, fmt.Errorf("invalid device %q", s)
		}
		return Device{Type: GPU, Index: i}, nil
	}
	return Device{}, fmt.Errorf("invalid device %q", s)
}

// List resolves the configured device set. Requesting GPUs on a host
// without any is a configuration error; "auto" degrades to a single CPU
// device instead.
func List(cfg config.DeviceConfig, logger *slog.Logger) ([]Device, error) {
	gpus := probeGPUs()

	switch cfg.Type {
	case "gpu":
		if len(gpus) == 0 {
			return nil, fmt.Errorf("gpu devices requested but none available")
		}
		if len(cfg.IDs) == 0 {
			return gpus, nil
		}
		selected := make([]Device, 0, len(cfg.IDs))
		for _, id := range cfg.IDs {
			if id >= len(gpus) {
				return nil, fmt.Errorf("gpu %d requested but only %d available", id, len(gpus))
			}
			selected = append(selected, Device{Type: GPU, Index: id})
		}
		return selected, nil

	case "auto":
		if len(gpus) > 0 {
			return gpus, nil
		}
		logger.Warn("no gpu available, falling back to cpu; this will take a long time")
		return []Device{{Type: CPU}}, nil

	default:
		return []Device{{Type: CPU}}, nil
	}
}

// Describe logs the host compute resources at startup.
func Describe(logger *slog.Logger) {
	if counts, err := cpu.Counts(true); err == nil {
		logger.Info("host cpu", "logical_cores", counts)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		logger.Info("host memory", "total_gb", vm.Total/(1<<30), "available_gb", vm.Available/(1<<30))
	}
}

// ThreadBudget splits the total thread budget across devices, minimum one
// thread per device.
func ThreadBudget(totalThreads, numDevices int) int {
	if numDevices < 1 {
		numDevices = 1
	}
	per := totalThreads / numDevices
	if per < 1 {
		per = 1
	}
	return per
}

// Strings renders a device list for logs and child process arguments.
func Strings(devices []Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.String()
	}
	return out
}
