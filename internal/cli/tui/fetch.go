package tui

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/monitor"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/progress"
)

// Messages for tea.Cmd
type snapshotMsg struct {
	training *progress.Training
	shards   []progress.ExtractionShard
	system   *monitor.SystemState
	err      error
}

type tickMsg time.Time

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchSnapshot polls the experiment's progress files and host resources.
// Missing files are normal (job not started, phase not reached) and simply
// leave the matching section empty.
func fetchSnapshot(exp *experiment.Experiment) tea.Cmd {
	return func() tea.Msg {
		var msg snapshotMsg

		if t, err := progress.ReadTraining(exp.ProgressPath()); err == nil {
			msg.training = &t
		}

		matches, _ := filepath.Glob(filepath.Join(exp.Dir, "extract_progress_*.json"))
		sort.Strings(matches)
		for _, path := range matches {
			if shard, err := progress.ReadExtraction(path); err == nil {
				msg.shards = append(msg.shards, shard)
			}
		}

		var pids []int
		if md, err := exp.ReadMetadata(); err == nil {
			pids = md.ProcessPIDs
		}
		system, err := monitor.Collect(pids)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.system = system

		if msg.training == nil && len(msg.shards) == 0 {
			if _, err := os.Stat(exp.Dir); err != nil {
				msg.err = err
			}
		}
		return msg
	}
}
