package cli

import (
	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <experiment>",
	Short: "Extract pitch and embedding features from sliced audio",
	Long: `Extract runs the feature extractors over every utterance in the
experiment's sliced-audio folder: a continuous pitch curve, its quantized
form, and a content embedding matrix. Work is split across the configured
devices, one process per device. Items whose artifacts already exist are
skipped, so an interrupted run can simply be restarted.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	exp := openExperiment(cfg, args[0])

	coord := extract.NewCoordinator(*cfg, cfgFile, exp, log)
	return coord.Run(cmd.Context())
}
