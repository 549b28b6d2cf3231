package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tag-bridge/internal/logger"
	"tag-bridge/internal/service"
	"tag-bridge/internal/worker"
)

const reapInterval = 30 * time.Second

func newNotifyCmd(v *viper.Viper) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Consume the triage queue and raise desktop notifications for archive items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			if !cfg.Redis.Enabled() {
				return errors.New("notify needs --redis-addr or TAGBRIDGE_REDIS_ADDR")
			}
			ctx := cmd.Context()

			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}

			queue := newTriageQueue(cfg.Redis, rdb)
			go reapStale(ctx, queue, log)

			log.Info("notify consumer started",
				"workers", workers,
				"redis_addr", cfg.Redis.Addr,
				"queue_key", cfg.Redis.QueueKey,
				"processing_key", cfg.Redis.ProcessingKey,
			)
			worker.NewNotificationPool(queue, worker.NewDesktopNotifier(log), workers, log).Run(ctx)
			log.Info("notify consumer stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent notification workers")
	return cmd
}

// reapStale returns payloads orphaned in processing lists to their lanes.
func reapStale(ctx context.Context, queue service.Queue, log *logger.Logger) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := queue.RequeueStale(ctx, 100)
			if err != nil {
				log.Error("requeue failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("requeued notifications from processing", "count", n)
			}
		}
	}
}
