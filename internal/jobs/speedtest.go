package jobs

import (
	"context"
	"encoding/json"
	"time"

	"cronloop/internal/schedule"
	"cronloop/internal/storage"
	logx "cronloop/pkg/logx"
	"cronloop/pkg/speedtest"
)

// Measurer runs one speedtest.
type Measurer interface {
	Run(ctx context.Context) (*speedtest.Result, error)
}

// SpeedtestParams are the params of a speedtest job.
type SpeedtestParams struct {
	Servers    int    `json:"servers,omitempty"`
	FullTests  int    `json:"full_tests,omitempty"`
	SavingMode bool   `json:"saving_mode,omitempty"`
	SkipUpload bool   `json:"skip_upload,omitempty"`
	PacketLoss bool   `json:"packet_loss,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	// Keep is how many results stay in job data.
	Keep int `json:"keep,omitempty"`
}

// Run history event types written by speedtest jobs.
const (
	EventSpeedtestResult = "speedtest.result"
	EventSpeedtestError  = "speedtest.error"
)

// SpeedtestState is the data of a speedtest job. Results are oldest first.
type SpeedtestState struct {
	Results  []speedtest.Result
	Failures int
	LastErr  string
}

func defaultMeasurer(p SpeedtestParams) Measurer {
	return speedtest.NewRunner(speedtest.RunConfig{
		ServerCount:       p.Servers,
		FullTestServers:   p.FullTests,
		SavingMode:        p.SavingMode,
		SkipUpload:        p.SkipUpload,
		PacketLossEnabled: p.PacketLoss,
	})
}

func newSpeedtest(env Env, name string, raw json.RawMessage) (schedule.Runner, error) {
	var p SpeedtestParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	timeout, err := durationParam("timeout", p.Timeout, 2*time.Minute)
	if err != nil {
		return nil, err
	}
	keep := p.Keep
	if keep <= 0 {
		keep = 24
	}
	m := env.Measurer(p)

	return schedule.RunnerFunc(func(ctx context.Context, jc *schedule.JobContext) {
		st := state[SpeedtestState](jc)

		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res, err := m.Run(rctx)
		if err != nil {
			st.Failures++
			st.LastErr = err.Error()
			env.Log.Warn("speedtest failed", logx.Err(err), logx.Int("failures", st.Failures))
			appendRecord(ctx, env, jc, EventSpeedtestError, err.Error())
			return
		}
		st.LastErr = ""
		st.Results = append(st.Results, *res)
		if over := len(st.Results) - keep; over > 0 {
			st.Results = append([]speedtest.Result(nil), st.Results[over:]...)
		}

		fields := []logx.Field{
			logx.String("result", res.Summary()),
			logx.Duration("took", res.Duration),
		}
		if stats := speedtest.Summarize(st.Results, env.Now().Add(-24*time.Hour)); stats != nil {
			fields = append(fields,
				logx.Int("samples_24h", stats.Count),
				logx.Float64("avg_download_mbps", stats.AvgDownload),
				logx.Float64("avg_ping_ms", stats.AvgPing))
		}
		env.Log.Info("speedtest finished", fields...)

		detail, _ := json.Marshal(res)
		appendRecord(ctx, env, jc, EventSpeedtestResult, string(detail))
	}), nil
}

// appendRecord writes a job-specific record to run history, if configured.
func appendRecord(ctx context.Context, env Env, jc *schedule.JobContext, event, detail string) {
	if env.Store == nil {
		return
	}
	remaining := -1
	if n, ok := jc.RemainingTicks(); ok {
		remaining = n
	}
	err := env.Store.AppendRun(ctx, storage.RunRecord{
		At:         env.Now(),
		JobID:      jc.ID().String(),
		JobName:    jc.Name(),
		Event:      event,
		Executions: jc.Executions(),
		Remaining:  remaining,
		Detail:     detail,
	})
	if err != nil {
		env.Log.Warn("run history append failed", logx.String("event", event), logx.Err(err))
	}
}
