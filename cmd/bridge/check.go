package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tag-bridge/internal/engine"
	"tag-bridge/internal/profile"
	"tag-bridge/internal/remote"
	"tag-bridge/internal/setup"
)

var errSetupCritical = errors.New("setup check failed")

func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate engine, workflow, profile and review service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			remoteClient, err := remote.New(remote.Options{BaseURL: cfg.Remote.BaseURL, Timeout: cfg.Remote.Timeout, Logger: log})
			if err != nil {
				return err
			}
			engineClient, err := engine.New(engine.Options{BaseURL: cfg.Engine.BaseURL, Logger: log})
			if err != nil {
				return err
			}

			rep := setup.NewChecker(setup.Options{
				Engine:       engineClient,
				Remote:       remoteClient,
				WorkflowPath: cfg.Engine.WorkflowPath,
				InputDir:     cfg.Engine.InputDir,
				Profiles:     profile.NewStore(cfg.Profile.Path),
				Logger:       log,
			}).Run(cmd.Context())

			if _, err := rep.WriteTo(cmd.OutOrStdout()); err != nil {
				return err
			}
			if !rep.Healthy() {
				return errSetupCritical
			}
			return nil
		},
	}
}
