// Package monitor samples host resources and the pipeline's worker
// processes. The watch view and the status command poll it.
package monitor

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

type CPUState struct {
	UsagePercent float64   `json:"usage_percent"`
	Cores        []float64 `json:"cores"`
}

type MemoryState struct {
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

// WorkerState is one registered pipeline process.
type WorkerState struct {
	PID        int     `json:"pid"`
	Alive      bool    `json:"alive"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

type SystemState struct {
	CPU       CPUState      `json:"cpu"`
	Memory    MemoryState   `json:"memory"`
	Workers   []WorkerState `json:"workers"`
	Timestamp time.Time     `json:"timestamp"`
}

// Collect samples the host and the given worker PIDs. A dead PID yields a
// WorkerState with Alive false rather than an error.
func Collect(pids []int) (*SystemState, error) {
	state := &SystemState{Timestamp: time.Now()}

	percentages, err := cpu.Percent(0, false)
	if err != nil {
		return nil, err
	}
	if len(percentages) > 0 {
		state.CPU.UsagePercent = percentages[0]
	}
	if cores, err := cpu.Percent(0, true); err == nil {
		state.CPU.Cores = cores
	}

	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	state.Memory = MemoryState{
		UsedBytes:    v.Used,
		TotalBytes:   v.Total,
		UsagePercent: v.UsedPercent,
	}

	for _, pid := range pids {
		ws := WorkerState{PID: pid}
		if p, err := process.NewProcess(int32(pid)); err == nil {
			ws.Alive = true
			if pct, err := p.CPUPercent(); err == nil {
				ws.CPUPercent = pct
			}
			if info, err := p.MemoryInfo(); err == nil && info != nil {
				ws.RSSBytes = info.RSS
			}
		}
		state.Workers = append(state.Workers, ws)
	}
	return state, nil
}
