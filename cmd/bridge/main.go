package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tag-bridge/internal/config"
	"tag-bridge/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(config.New())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "bridge",
		Short:         "Tag images from a review service with a local inference engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("env", "development", "development or production (JSON logs)")
	pf.String("log-file", "", "also write logs to this file")
	pf.String("server", "http://127.0.0.1:5000", "review service base URL")
	pf.String("engine-url", "http://127.0.0.1:8188", "inference engine base URL")
	pf.String("workflow", "fashion_tagger_api.json", "engine workflow file")
	pf.String("profile", "preference_profile.json", "preference profile file")
	pf.String("postgres-dsn", "", "outcome ledger DSN (disabled when empty)")
	pf.String("redis-addr", "", "triage queue Redis address (disabled when empty)")
	mustBind(v, pf, map[string]string{
		config.KeyEnv:          "env",
		config.KeyLogFile:      "log-file",
		config.KeyServer:       "server",
		config.KeyEngineURL:    "engine-url",
		config.KeyWorkflowPath: "workflow",
		config.KeyProfilePath:  "profile",
		config.KeyPostgresDSN:  "postgres-dsn",
		config.KeyRedisAddr:    "redis-addr",
	})

	root.AddCommand(
		newRunCmd(v),
		newProfileCmd(v),
		newCheckCmd(v),
		newNotifyCmd(v),
	)
	return root
}

// mustBind maps config keys onto flag names. A missing flag is a programming error.
func mustBind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// bootstrap resolves the configuration and builds the process logger.
func bootstrap(v *viper.Viper) (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.Env, cfg.LogFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
