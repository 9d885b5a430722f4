package jobs

import (
	"context"
	"encoding/json"
	"time"

	"cronloop/internal/schedule"
	logx "cronloop/pkg/logx"
)

type heartbeatParams struct {
	Message string `json:"message"`
}

// HeartbeatState is the data of a heartbeat job.
type HeartbeatState struct {
	Beats uint64
	Last  time.Time
}

func newHeartbeat(env Env, name string, raw json.RawMessage) (schedule.Runner, error) {
	p := heartbeatParams{Message: "alive"}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return schedule.RunnerFunc(func(_ context.Context, jc *schedule.JobContext) {
		st := state[HeartbeatState](jc)
		st.Beats++
		st.Last = env.Now()

		fields := []logx.Field{
			logx.String("message", p.Message),
			logx.Uint64("beats", st.Beats),
		}
		if n, ok := jc.RemainingTicks(); ok {
			fields = append(fields, logx.Int("remaining", n))
		}
		env.Log.Info("heartbeat", fields...)
	}), nil
}
