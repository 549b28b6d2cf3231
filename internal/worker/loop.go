package worker

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultSleepInterval = 5 * time.Minute
	DefaultCooldown      = time.Minute
)

type LoopConfig struct {
	BatchSize int
	Interval  time.Duration
	Cooldown  time.Duration
}

// RunContinuous repeats RunBatch until ctx is cancelled, sleeping Interval
// between batches and Cooldown after a failed one. It returns nil on a
// clean shutdown.
func (o *Orchestrator) RunContinuous(ctx context.Context, cfg LoopConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSleepInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	o.log.Info("bridge started in continuous mode",
		"batch_size", cfg.BatchSize,
		"sleep", cfg.Interval.String(),
		"cooldown", cfg.Cooldown.String(),
	)

	for {
		n, err := o.runBatchSafe(ctx, cfg.BatchSize)
		if ctx.Err() != nil {
			o.log.Info("received shutdown signal, stopping")
			return nil
		}

		wait := cfg.Interval
		if err != nil {
			o.log.Error("error in main loop", "error", err)
			o.log.Info("sleeping before retry", "cooldown", cfg.Cooldown.String())
			wait = cfg.Cooldown
		} else if n == 0 {
			o.log.Info("no images processed, sleeping", "sleep", wait.String())
		} else {
			o.log.Info("batch processed, sleeping", "reported", n, "sleep", wait.String())
		}

		if !sleepCtx(ctx, wait) {
			o.log.Info("received shutdown signal, stopping")
			return nil
		}
	}
}

func (o *Orchestrator) runBatchSafe(ctx context.Context, max int) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.RunBatch(ctx, max)
}
