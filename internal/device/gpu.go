package device

import (
	"os"
	"strconv"
	"strings"
)

// probeGPUs discovers CUDA devices. Graceful degradation: without NVML
// bindings the only signal is CUDA_VISIBLE_DEVICES, so an empty result means
// CPU-only. Real discovery would use github.com/NVIDIA/go-nvml.
func probeGPUs() []Device {
	visible := os.Getenv("CUDA_VISIBLE_DEVICES")
	if visible == "" {
		return nil
	}

	var gpus []Device
	for i, part := range strings.Split(visible, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-1" {
			continue
		}
		if _, err := strconv.Atoi(part); err != nil {
			continue
		}
		gpus = append(gpus, Device{Type: GPU, Index: i})
	}
	return gpus
}
