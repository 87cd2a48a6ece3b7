package cli

import (
	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/filelist"
)

var filelistCmd = &cobra.Command{
	Use:   "filelist <experiment>",
	Short: "Assemble the training manifest from extracted features",
	Long: `Filelist intersects the waveform, embedding and pitch artifact folders,
drops any utterance with a missing artifact, and writes the shuffled
training manifest. Configured silence rows are appended per speaker and
the speaker count is recorded in the experiment metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: runFilelist,
}

func init() {
	rootCmd.AddCommand(filelistCmd)
}

func runFilelist(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	exp := openExperiment(cfg, args[0])

	return filelist.New(*cfg, exp, log).Build()
}
