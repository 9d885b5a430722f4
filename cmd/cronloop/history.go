package main

import (
	"context"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"cronloop/internal/config"
	"cronloop/internal/storage"
	logx "cronloop/pkg/logx"
)

var (
	historyJob   string
	historyEvent string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent job runs from run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(configPath).Parse()
		if err != nil {
			return err
		}
		store, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, logx.Nop())
		if err != nil {
			return err
		}
		if store == nil {
			pterm.Warning.Println("run history is disabled (storage.driver is none)")
			return nil
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		recs, err := store.RecentRuns(ctx, storage.Query{JobName: historyJob, Event: historyEvent, Limit: historyLimit})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			pterm.Info.Println("no runs recorded")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(historyTable(recs)).Render()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyJob, "job", "", "only this job")
	historyCmd.Flags().StringVar(&historyEvent, "event", "", "only this event type (e.g. job.panicked)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum rows")
}

func historyTable(recs []storage.RunRecord) pterm.TableData {
	data := pterm.TableData{{"at", "job", "event", "run", "took", "left", "detail"}}
	for _, r := range recs {
		left := "∞"
		if r.Remaining >= 0 {
			left = strconv.Itoa(r.Remaining)
		}
		took := ""
		if r.Elapsed > 0 {
			took = r.Elapsed.Round(time.Millisecond).String()
		}
		data = append(data, []string{
			r.At.Local().Format("2006-01-02 15:04:05"),
			r.JobName,
			r.Event,
			strconv.FormatUint(r.Executions, 10),
			took,
			left,
			r.Detail,
		})
	}
	return data
}
