package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/checkpoint"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/device"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/dist"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
)

// rendezvous ports are drawn from the ephemeral-ish range the workers are
// allowed to bind
const (
	portMin = 20000
	portMax = 55555
)

// ExitResult classifies how a worker process ended.
type ExitResult int

const (
	ExitOK ExitResult = iota
	ExitCancelled
	ExitFailed
)

// ClassifyExit maps a process wait error onto an exit result. Death by
// SIGTERM is cancellation, not failure.
func ClassifyExit(err error) ExitResult {
	if err == nil {
		return ExitOK
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() && status.Signal() == syscall.SIGTERM {
				return ExitCancelled
			}
		}
	}
	return ExitFailed
}

// Orchestrator owns a training run: one worker per device, a rendezvous
// endpoint for the collective, and the PID registry external tooling uses
// to cancel the run.
type Orchestrator struct {
	cfg        config.Config
	configPath string
	exp        *experiment.Experiment
	logger     *slog.Logger
}

func NewOrchestrator(cfg config.Config, configPath string, exp *experiment.Experiment, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, configPath: configPath, exp: exp, logger: logger}
}

// Run prepares the experiment and drives every worker to a terminal state.
// Failures are aggregated after all workers have been joined, so one bad
// rank never orphans the rest.
func (o *Orchestrator) Run(ctx context.Context) error {
	devices, err := device.List(o.cfg.Devices, o.logger)
	if err != nil {
		return err
	}
	device.Describe(o.logger)

	if o.cfg.Training.Cleanup {
		if err := checkpoint.NewStore(o.exp, o.logger).Cleanup(); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	if err := o.exp.UpdateMetadata(func(md *experiment.Metadata) {
		md.SampleRate = o.cfg.Training.SampleRate
	}); err != nil {
		return err
	}

	if len(devices) == 1 {
		return o.runSingle(ctx)
	}
	return o.runMulti(ctx, len(devices))
}

func (o *Orchestrator) runSingle(ctx context.Context) error {
	group, err := dist.Init(ctx, 0, 1, "")
	if err != nil {
		return err
	}
	defer group.Close()

	// single-device training runs in this process, so stop tooling needs
	// our own pid in the registry
	if err := o.exp.RegisterPIDs([]int{os.Getpid()}); err != nil {
		o.logger.Warn("failed to record worker pid", "error", err)
	}
	worker, err := NewWorker(o.cfg, o.exp, o.logger, 0, group)
	if err != nil {
		o.clearPIDs()
		return err
	}
	outcome, err := worker.Run(ctx)
	return o.finish(outcome, err)
}

func (o *Orchestrator) clearPIDs() {
	if err := o.exp.ClearPIDs(); err != nil {
		o.logger.Warn("failed to clear pid registry", "error", err)
	}
}

func (o *Orchestrator) finish(outcome Outcome, err error) error {
	o.clearPIDs()
	switch outcome {
	case OutcomeDone, OutcomeOvertrained:
		return nil
	case OutcomeCancelled:
		o.logger.Info("training cancelled")
		return nil
	default:
		return err
	}
}

func (o *Orchestrator) runMulti(ctx context.Context, world int) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	port := portMin + rand.Intn(portMax-portMin+1)
	o.logger.Info("starting distributed training",
		"world", world, "port", port)

	cmds := make([]*exec.Cmd, world)
	pids := make([]int, 0, world)
	for rank := 0; rank < world; rank++ {
		cmd := exec.CommandContext(ctx, exe, "_train-worker",
			"--config", o.configPath,
			"--name", o.exp.Name,
			"--rank", strconv.Itoa(rank),
			"--world", strconv.Itoa(world))
		cmd.Env = append(os.Environ(),
			dist.MasterAddrEnv+"=127.0.0.1",
			dist.MasterPortEnv+"="+strconv.Itoa(port))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start worker %d: %w", rank, err)
		}
		cmds[rank] = cmd
		pids = append(pids, cmd.Process.Pid)
	}
	if err := o.exp.RegisterPIDs(pids); err != nil {
		o.logger.Warn("failed to record worker pids", "error", err)
	}

	var failed, cancelled []int
	for rank, cmd := range cmds {
		switch ClassifyExit(cmd.Wait()) {
		case ExitCancelled:
			cancelled = append(cancelled, rank)
		case ExitFailed:
			failed = append(failed, rank)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("training failed on ranks %v", failed)
	}
	if len(cancelled) > 0 {
		o.logger.Info("training cancelled", "ranks", cancelled)
	}
	o.clearPIDs()
	return nil
}
