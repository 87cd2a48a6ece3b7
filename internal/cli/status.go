package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/monitor"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status <experiment>",
	Short: "Show experiment progress and worker resource usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exp := openExperiment(cfg, args[0])
	if !exp.Exists() {
		return fmt.Errorf("experiment %s does not exist", exp.Name)
	}

	md, err := exp.ReadMetadata()
	if err != nil {
		return err
	}
	state, err := monitor.Collect(md.ProcessPIDs)
	if err != nil {
		return err
	}

	training, trainErr := progress.ReadTraining(exp.ProgressPath())

	if jsonOut {
		out := map[string]any{
			"experiment": exp.Name,
			"metadata":   md,
			"system":     state,
		}
		if trainErr == nil {
			out["training"] = training
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Experiment: %s\n", exp.Name)
	if md.SpeakersID > 0 {
		fmt.Printf("Speakers:   %d\n", md.SpeakersID)
	}
	if trainErr == nil {
		fmt.Printf("Training:   %s, epoch %d/%d, step %d\n",
			training.State, training.Epoch, training.TotalEpochs, training.Step)
		if training.BestEpoch > 0 {
			fmt.Printf("Best loss:  %.4f (epoch %d)\n", training.BestLoss, training.BestEpoch)
		}
	}
	fmt.Printf("CPU: %.1f%%  Memory: %.1f%%\n",
		state.CPU.UsagePercent, state.Memory.UsagePercent)
	for _, w := range state.Workers {
		alive := "dead"
		if w.Alive {
			alive = "alive"
		}
		fmt.Printf("Worker %d: %s, cpu %.1f%%, rss %d MB\n",
			w.PID, alive, w.CPUPercent, w.RSSBytes/1024/1024)
	}
	return nil
}
