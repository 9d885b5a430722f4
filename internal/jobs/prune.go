package jobs

import (
	"context"
	"encoding/json"
	"time"

	"cronloop/internal/schedule"
	logx "cronloop/pkg/logx"
)

type pruneParams struct {
	// Retention overrides storage.retention for this job.
	Retention string `json:"retention,omitempty"`
}

// PruneState is the data of a prune-history job.
type PruneState struct {
	Deleted int
	LastRun time.Time
}

// defaultRetention applies when neither the job nor storage sets one.
const defaultRetention = 7 * 24 * time.Hour

func newPruneHistory(env Env, name string, raw json.RawMessage) (schedule.Runner, error) {
	var p pruneParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	def := env.Retention
	if def <= 0 {
		def = defaultRetention
	}
	retention, err := durationParam("retention", p.Retention, def)
	if err != nil {
		return nil, err
	}

	return schedule.RunnerFunc(func(ctx context.Context, jc *schedule.JobContext) {
		if env.Store == nil {
			env.Log.Warn("prune skipped; run history is disabled")
			return
		}
		st := state[PruneState](jc)
		now := env.Now()
		n, err := env.Store.PruneRuns(ctx, now.Add(-retention))
		if err != nil {
			env.Log.Warn("prune failed", logx.Err(err))
			return
		}
		st.Deleted += n
		st.LastRun = now
		env.Log.Info("run history pruned",
			logx.Int("deleted", n),
			logx.Duration("retention", retention))
	}), nil
}
