package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/logger"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/train"
)

var trainCmd = &cobra.Command{
	Use:   "train <experiment>",
	Short: "Train the voice conversion model",
	Long: `Train runs the adversarial training loop over the experiment's manifest,
one worker process per configured device. Training resumes from the newest
checkpoint pair when one exists. Checkpoints are written on the configured
epoch cadence, a deployable snapshot is kept for the best epoch seen, and
the run stops early once the overtraining detector's budget runs out.

SIGINT or SIGTERM cancels the run; checkpoints already on disk are left
intact and a later invocation resumes from them.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exp := openExperiment(cfg, args[0])

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log, closeLog, err := logger.NewExperiment(exp.Dir, level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer closeLog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := train.NewOrchestrator(*cfg, cfgFile, exp, log)
	return orch.Run(ctx)
}
