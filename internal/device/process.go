package device

import (
	"fmt"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// PIDAlive reports whether a registered worker PID still refers to a live
// process. Stale registry entries from a crashed run return false.
func PIDAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

// SignalPIDs sends SIGTERM to each live PID and reports how many were
// signalled. Dead PIDs are skipped silently: the registry may be stale.
func SignalPIDs(pids []int) (int, error) {
	signalled := 0
	for _, pid := range pids {
		if !PIDAlive(pid) {
			continue
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return signalled, fmt.Errorf("signal pid %d: %w", pid, err)
		}
		signalled++
	}
	return signalled, nil
}
