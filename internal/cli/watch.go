package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/cli/tui"
)

var watchRefresh time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <experiment>",
	Short: "Live dashboard for a running extraction or training job",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchRefresh, "refresh", 2*time.Second, "refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exp := openExperiment(cfg, args[0])

	return tui.Run(tui.Config{
		Experiment:      exp,
		RefreshInterval: watchRefresh,
	})
}
