package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/device"
)

var stopCmd = &cobra.Command{
	Use:   "stop <experiment>",
	Short: "Stop a running training or extraction job",
	Long: `Stop sends SIGTERM to every worker process registered in the experiment's
metadata. PIDs that are no longer alive are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exp := openExperiment(cfg, args[0])

	md, err := exp.ReadMetadata()
	if err != nil {
		return err
	}
	if len(md.ProcessPIDs) == 0 {
		return fmt.Errorf("no registered worker processes for %s (not running?)", exp.Name)
	}

	signalled, err := device.SignalPIDs(md.ProcessPIDs)
	if err != nil {
		return err
	}
	if err := exp.ClearPIDs(); err != nil {
		return err
	}

	if jsonOut {
		fmt.Printf(`{"status":"stopped","signalled":%d}`+"\n", signalled)
	} else {
		fmt.Printf("Sent SIGTERM to %d worker process(es)\n", signalled)
	}
	return nil
}
