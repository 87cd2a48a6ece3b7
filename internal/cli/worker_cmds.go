package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/device"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/dist"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/extract"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/logger"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/train"
)

// Worker subcommands are spawned by the coordinators via self-exec, one
// process per device. They are hidden: users never invoke them directly.

var (
	workerName  string
	workerRank  int
	workerWorld int
)

var extractShardCmd = &cobra.Command{
	Use:    "_extract-shard",
	Hidden: true,
	RunE:   runExtractShard,
}

var trainWorkerCmd = &cobra.Command{
	Use:    "_train-worker",
	Hidden: true,
	RunE:   runTrainWorker,
}

func init() {
	for _, cmd := range []*cobra.Command{extractShardCmd, trainWorkerCmd} {
		cmd.Flags().StringVar(&workerName, "name", "", "experiment name")
		cmd.Flags().IntVar(&workerRank, "rank", 0, "worker rank")
		cmd.MarkFlagRequired("name")
		rootCmd.AddCommand(cmd)
	}
	trainWorkerCmd.Flags().IntVar(&workerWorld, "world", 1, "worker count")
}

func runExtractShard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg).With("rank", workerRank)
	exp := openExperiment(cfg, workerName)

	devices, err := device.List(cfg.Devices, log)
	if err != nil {
		return err
	}
	if workerRank >= len(devices) {
		return fmt.Errorf("rank %d out of range for %d devices", workerRank, len(devices))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := extract.NewCoordinator(*cfg, cfgFile, exp, log)
	return coord.RunShard(ctx, workerRank, devices)
}

func runTrainWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exp := openExperiment(cfg, workerName)

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log, closeLog, err := logger.NewExperiment(exp.Dir, level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer closeLog.Close()
	log = log.With("rank", workerRank)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := os.Getenv(dist.MasterAddrEnv) + ":" + os.Getenv(dist.MasterPortEnv)
	group, err := dist.Init(ctx, workerRank, workerWorld, addr)
	if err != nil {
		return err
	}
	defer group.Close()

	worker, err := train.NewWorker(*cfg, exp, log, workerRank, group)
	if err != nil {
		return err
	}
	outcome, runErr := worker.Run(ctx)
	if err := exp.RemovePID(os.Getpid()); err != nil {
		log.Warn("failed to deregister pid", "error", err)
	}
	log.Info("worker finished", "outcome", outcome.String())

	switch outcome {
	case train.OutcomeDone, train.OutcomeOvertrained:
		return nil
	case train.OutcomeCancelled:
		// die by the signal so the orchestrator classifies this exit as
		// cancellation rather than failure
		group.Close()
		closeLog.Close()
		stop()
		signal.Reset(syscall.SIGTERM)
		syscall.Kill(os.Getpid(), syscall.SIGTERM)
		return runErr
	default:
		return runErr
	}
}
