package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cronloop",
	Short: "cronloop - in-process cron scheduler daemon",
	Long: `cronloop runs jobs on cron schedules, catching up on occurrences missed
between ticks.

Examples:
  cronloop run -c cronloop.yaml         # start the daemon
  cronloop validate -c cronloop.yaml    # check config and every job
  cronloop next --expr "*/15 * * * *"   # preview upcoming occurrences
  cronloop history -c cronloop.yaml     # show recent job runs`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./cronloop.yaml", "path to config file (.json, .yaml, .toml)")
	rootCmd.AddCommand(runCmd, validateCmd, nextCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
