package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"cronloop/internal/config"
	"cronloop/internal/jobs"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and build every job",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(configPath).Parse()
		if err != nil {
			return err
		}
		built, err := jobs.BuildAll(jobs.Env{}, cfg)
		if err != nil {
			return err
		}
		pterm.Success.Printf("%s: %d jobs OK\n", configPath, len(built))
		return nil
	},
}
