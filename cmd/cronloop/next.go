package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"cronloop/internal/config"
	"cronloop/internal/schedule"
)

var (
	nextExpr  string
	nextCount int
	nextTZ    string
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next occurrences of a cron expression",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		times, err := upcoming(nextExpr, nextTZ, nextCount, now)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"#", "time", "in"}}
		for i, t := range times {
			data = append(data, []string{
				strconv.Itoa(i + 1),
				t.Format("2006-01-02 15:04:05 MST"),
				t.Sub(now).Round(time.Second).String(),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	nextCmd.Flags().StringVarP(&nextExpr, "expr", "e", "", "cron expression (5 or 6 fields, or a descriptor like @hourly)")
	nextCmd.Flags().IntVarP(&nextCount, "count", "n", 5, "number of occurrences")
	nextCmd.Flags().StringVar(&nextTZ, "tz", "", "IANA time zone (default local)")
	_ = nextCmd.MarkFlagRequired("expr")
}

// upcoming returns the first n occurrences of expr after now, evaluated in tz.
func upcoming(expr, tz string, n int, now time.Time) ([]time.Time, error) {
	if n <= 0 {
		return nil, errors.Newf("count must be positive, got %d", n)
	}
	src, err := schedule.ParseSource(strings.TrimSpace(expr))
	if err != nil {
		return nil, err
	}
	loc, err := config.SchedulerConfig{Timezone: tz}.Location()
	if err != nil {
		return nil, err
	}
	return schedule.Upcoming(src, now.In(loc), n), nil
}
