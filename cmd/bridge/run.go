package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tag-bridge/internal/config"
	"tag-bridge/internal/engine"
	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
	"tag-bridge/internal/profile"
	"tag-bridge/internal/remote"
	"tag-bridge/internal/repository/postgresql"
	"tag-bridge/internal/scoring"
	"tag-bridge/internal/service"
	"tag-bridge/internal/setup"
	"tag-bridge/internal/tagging"
	"tag-bridge/internal/telemetry"
	httptransport "tag-bridge/internal/transport/http"
	"tag-bridge/internal/worker"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending images in batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.Int("batch-size", 10, "images per batch")
	f.Duration("sleep", worker.DefaultSleepInterval, "wait between batches, e.g. 5m")
	f.Duration("cooldown", worker.DefaultCooldown, "wait after a failed batch")
	f.Duration("pacing", time.Second, "pause between images of a batch")
	f.Bool("once", false, "process one batch and exit")
	f.String("status-addr", "", "serve the status API on this address (disabled when empty)")
	mustBind(v, f, map[string]string{
		config.KeyBatchSize:  "batch-size",
		config.KeySleep:      "sleep",
		config.KeyCooldown:   "cooldown",
		config.KeyPacing:     "pacing",
		config.KeyOnce:       "once",
		config.KeyStatusAddr: "status-addr",
	})
	return cmd
}

func runBridge(ctx context.Context, v *viper.Viper) error {
	cfg, log, err := bootstrap(v)
	if err != nil {
		return err
	}
	defer log.Sync()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", "error", err)
		}
	}()

	log.Info("bridge config",
		"server_url", cfg.Remote.BaseURL,
		"engine_url", cfg.Engine.BaseURL,
		"workflow", cfg.Engine.WorkflowPath,
		"batch_size", cfg.Bridge.BatchSize,
		"postgres_dsn", cfg.Postgres.DSN,
		"redis_addr", cfg.Redis.Addr,
	)

	remoteClient, err := remote.New(remote.Options{BaseURL: cfg.Remote.BaseURL, Timeout: cfg.Remote.Timeout, Logger: log})
	if err != nil {
		return err
	}
	engineClient, err := engine.New(engine.Options{BaseURL: cfg.Engine.BaseURL, Logger: log})
	if err != nil {
		return err
	}
	workflow, err := engine.LoadGraph(cfg.Engine.WorkflowPath)
	if err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	// the orchestrator reloads the profile before every batch
	store := profile.NewStore(cfg.Profile.Path)
	prof, err := store.Load()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("no preference profile found, scoring with neutral values until one is built", "path", store.Path())
	case err != nil:
		log.Warn("preference profile unreadable, scoring with neutral values", "error", err)
	default:
		log.Info("preference profile loaded", "liked", prof.TotalLiked, "disliked", prof.TotalDisliked)
	}

	opts := worker.Options{
		Source:     remoteClient,
		Engine:     engineClient,
		Stager:     worker.NewFileStager(cfg.Bridge.TempDir, cfg.Engine.InputDir, remoteClient, log),
		Normalizer: tagging.NewNormalizer(tagging.RulesFromConfig(cfg.Normalizer), log),
		Scorer:     scoring.New(scoring.DefaultConfig(), log),
		Profiles:   store,
		Workflow:   workflow,
		JobTimeout: cfg.Engine.JobTimeout,
		Pacing:     cfg.Bridge.Pacing,
		Logger:     log,
	}

	var outcomes httptransport.OutcomeStore
	if cfg.Postgres.Enabled() {
		pool, err := postgresql.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		defer pool.Close()

		repo := postgresql.NewOutcomeRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("pg schema: %w", err)
		}
		opts.Recorder = repo
		outcomes = repo
	}

	switch {
	case cfg.Redis.Enabled():
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		opts.Notifier = service.NewTriageService(newTriageQueue(cfg.Redis, rdb))
		log.Info("archive items are published to the triage queue", "queue_key", cfg.Redis.QueueKey)
	case cfg.Bridge.Notify:
		opts.Notifier = worker.NewDesktopNotifier(log)
	}

	orch, err := worker.NewOrchestrator(opts)
	if err != nil {
		return err
	}

	if cfg.Status.Enabled() {
		checker := setup.NewChecker(setup.Options{
			Engine:       engineClient,
			Remote:       remoteClient,
			WorkflowPath: cfg.Engine.WorkflowPath,
			InputDir:     cfg.Engine.InputDir,
			Profiles:     store,
			Logger:       log,
		})
		h := httptransport.NewHandler(httptransport.HandlerOptions{
			Health:   checker,
			Stats:    orch,
			Outcomes: outcomes,
			Profile:  orch,
		})
		stopStatus := serveStatus(cfg.Status.Addr, httptransport.Routes(h, log), log)
		defer stopStatus()
	}

	if cfg.Bridge.Once {
		n, err := orch.RunBatch(ctx, cfg.Bridge.BatchSize)
		log.Info("single batch finished", "reported", n)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return orch.RunContinuous(ctx, worker.LoopConfig{
		BatchSize: cfg.Bridge.BatchSize,
		Interval:  cfg.Bridge.SleepInterval,
		Cooldown:  cfg.Bridge.Cooldown,
	})
}

// newTriageQueue lays out one Redis lane per disposition, archive first.
func newTriageQueue(cfg config.RedisConfig, rdb *redis.Client) service.Queue {
	lanes := service.NamedLanes(cfg.QueueKey, cfg.ProcessingKey,
		service.LaneFor(entity.DispositionArchive),
		service.LaneFor(entity.DispositionReview),
		service.LaneFor(entity.DispositionReject),
	)
	return service.NewRedisLaneQueue(rdb, cfg.ProcessingKey+":map", lanes...)
}

func serveStatus(addr string, handler http.Handler, log *logger.Logger) (stop func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
