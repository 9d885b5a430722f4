package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cronloop/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := app.New(configPath)
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background())
			return err
		}

		select {
		case <-ctx.Done():
		case <-a.Done():
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := a.Stop(stopCtx); err != nil {
			return err
		}
		return a.Err()
	},
}
