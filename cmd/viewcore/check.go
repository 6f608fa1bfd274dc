package main

import (
	"github.com/spf13/cobra"

	"github.com/vango-dev/viewcore/internal/config"
)

func checkCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			source := cfg.Path()
			if source == "" {
				source = "defaults"
			}
			success("Configuration is valid (%s)", source)
			info("Listen:  %s", cfg.Address())
			info("Journal: %v (%s)", cfg.Journal.Enabled, cfg.Journal.Sink)
			info("Metrics: %v", cfg.Metrics.Enabled)
			return nil
		},
	}
}
