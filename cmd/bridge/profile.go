package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tag-bridge/internal/profile"
	"tag-bridge/internal/remote"
)

func newProfileCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Build or inspect the preference profile",
	}
	cmd.AddCommand(newProfileBuildCmd(v), newProfileShowCmd(v))
	return cmd
}

func newProfileBuildCmd(v *viper.Viper) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Aggregate designer feedback into a preference profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			client, err := remote.New(remote.Options{BaseURL: cfg.Remote.BaseURL, Timeout: cfg.Remote.Timeout, Logger: log})
			if err != nil {
				return err
			}

			log.Info("building preference profile from feedback", "server_url", cfg.Remote.BaseURL)
			p := profile.NewBuilder(client, log).Build(cmd.Context())

			path := output
			if path == "" {
				path = cfg.Profile.Path
			}
			store := profile.NewStore(path)
			if err := store.Save(p); err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
			log.Info("profile saved", "path", store.Path())

			return profile.WriteSummary(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "write the profile here instead of --profile")
	return cmd
}

func newProfileShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print a summary of the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			p, err := profile.NewStore(cfg.Profile.Path).Load()
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no profile at %s, run 'bridge profile build' first", cfg.Profile.Path)
			}
			if err != nil {
				return err
			}
			return profile.WriteSummary(cmd.OutOrStdout(), p)
		},
	}
}
