package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/device"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/experiment"
	"github.com/slim-elephant/ultimate-rvc-mac/internal/progress"
)

// Coordinator fans extraction out across devices, one worker process per
// device, each running a bounded goroutine pool over its shard.
type Coordinator struct {
	cfg        config.Config
	configPath string
	exp        *experiment.Experiment
	logger     *slog.Logger
}

func NewCoordinator(cfg config.Config, configPath string, exp *experiment.Experiment, logger *slog.Logger) *Coordinator {
	return &Coordinator{cfg: cfg, configPath: configPath, exp: exp, logger: logger}
}

func (c *Coordinator) embedderName() string {
	if c.cfg.Extraction.CustomEmbedderModel != "" {
		return "custom"
	}
	return c.cfg.Extraction.EmbedderModel
}

// Run prepares the experiment, records metadata, and drives one worker per
// device to completion. Worker failures are aggregated after every process
// has been joined so one bad shard does not abandon the others mid-flight.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.exp.EnsureDirs(c.cfg.Extraction.F0Method, c.embedderName()); err != nil {
		return err
	}
	devices, err := device.List(c.cfg.Devices, c.logger)
	if err != nil {
		return err
	}

	// resolve the embedder up front so a bad name or missing custom model
	// fails before any process is spawned, and so the hash lands in metadata
	_, hash, err := NewEmbeddingExtractor(c.embedderName(), c.cfg.Extraction.CustomEmbedderModel,
		c.cfg.Model.EmbeddingDim, c.logger)
	if err != nil {
		return err
	}
	if err := c.exp.UpdateMetadata(func(md *experiment.Metadata) {
		md.EmbedderModel = c.embedderName()
		md.CustomEmbedderModelHash = hash
	}); err != nil {
		return err
	}

	items, err := Index(c.exp, c.cfg.Extraction.F0Method, c.embedderName())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no sliced audio found in %s", c.exp.SlicedAudio16kDir())
	}
	c.logger.Info("starting feature extraction",
		"items", len(items),
		"devices", device.Strings(devices),
		"method", c.cfg.Extraction.F0Method,
		"embedder", c.embedderName())

	if len(devices) == 1 {
		return c.RunShard(ctx, 0, devices)
	}
	return c.spawnShards(ctx, devices)
}

func (c *Coordinator) spawnShards(ctx context.Context, devices []device.Device) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	cmds := make([]*exec.Cmd, len(devices))
	pids := make([]int, 0, len(devices))
	for rank := range devices {
		cmd := exec.CommandContext(ctx, exe, "_extract-shard",
			"--config", c.configPath,
			"--name", c.exp.Name,
			"--rank", strconv.Itoa(rank))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start shard %d: %w", rank, err)
		}
		cmds[rank] = cmd
		pids = append(pids, cmd.Process.Pid)
	}
	if err := c.exp.RegisterPIDs(pids); err != nil {
		c.logger.Warn("failed to record worker pids", "error", err)
	}

	var failures []error
	for rank, cmd := range cmds {
		if err := cmd.Wait(); err != nil {
			failures = append(failures, fmt.Errorf("shard %d (%s): %w", rank, devices[rank], err))
		}
	}
	for _, pid := range pids {
		if err := c.exp.RemovePID(pid); err != nil {
			c.logger.Warn("failed to clear worker pid", "pid", pid, "error", err)
		}
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	c.logger.Info("feature extraction complete", "shards", len(devices))
	return nil
}

// RunShard processes the rank-th shard of the work list on devices[rank].
// Per-item failures are isolated: each is logged with its source path and
// device, and the shard fails only if any item failed after all finished.
func (c *Coordinator) RunShard(ctx context.Context, rank int, devices []device.Device) error {
	dev := devices[rank]
	items, err := Index(c.exp, c.cfg.Extraction.F0Method, c.embedderName())
	if err != nil {
		return err
	}
	shard := Shard(items, rank, len(devices))

	pitch, err := NewPitchExtractor(c.cfg.Extraction.F0Method,
		c.cfg.Extraction.SampleRate, c.cfg.Extraction.HopLength)
	if err != nil {
		return err
	}
	embed, _, err := NewEmbeddingExtractor(c.embedderName(), c.cfg.Extraction.CustomEmbedderModel,
		c.cfg.Model.EmbeddingDim, c.logger)
	if err != nil {
		return err
	}

	threads := device.ThreadBudget(c.cfg.Extraction.Threads, len(devices))
	progressPath := progress.ExtractionPath(c.exp.Dir, rank)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		done   int
		failed int
	)
	sem := make(chan struct{}, threads)

	report := func() {
		if err := progress.WriteExtraction(progressPath, progress.ExtractionShard{
			Rank:   rank,
			Device: dev.String(),
			Done:   done,
			Failed: failed,
			Total:  len(shard),
		}); err != nil {
			c.logger.Warn("failed to write progress", "error", err)
		}
	}
	report()

	for _, item := range shard {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(item WorkItem) {
			defer wg.Done()
			defer func() { <-sem }()

			var itemErr error
			if item.Done() {
				c.logger.Debug("artifacts exist, skipping", "source", item.WavPath)
			} else {
				if err := pitch.ProcessItem(item); err != nil {
					itemErr = err
				} else if err := embed.ProcessItem(item); err != nil {
					itemErr = err
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if itemErr != nil {
				failed++
				c.logger.Error("extraction failed for item",
					"source", item.WavPath, "device", dev.String(), "error", itemErr)
			} else {
				done++
			}
			report()
		}(item)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed on %s", failed, len(shard), dev)
	}
	c.logger.Info("shard complete", "rank", rank, "device", dev.String(), "items", done)
	return nil
}
