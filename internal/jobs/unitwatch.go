package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"cronloop/internal/schedule"
	logx "cronloop/pkg/logx"
	sm "cronloop/pkg/systemdmanager"
)

// UnitController inspects and restarts systemd units.
type UnitController interface {
	Status(ctx context.Context, name string) (sm.UnitStatus, error)
	Restart(ctx context.Context, name string) error
}

type unitWatchParams struct {
	Units          []string `json:"units"`
	MinDown        string   `json:"min_down,omitempty"`
	RestartTimeout string   `json:"restart_timeout,omitempty"`
	BackoffBase    string   `json:"backoff_base,omitempty"`
	BackoffMax     string   `json:"backoff_max,omitempty"`
}

// UnitWatchState is the data of a unit-watch job, keyed by unit name.
type UnitWatchState struct {
	Units map[string]*UnitState
}

// UnitState tracks recovery of one unit.
type UnitState struct {
	Missing    bool
	Restarts   int
	FailStreak int
	NextTry    time.Time
	LastErr    string
}

func (s *UnitWatchState) unit(name string) *UnitState {
	if s.Units == nil {
		s.Units = map[string]*UnitState{}
	}
	us, ok := s.Units[name]
	if !ok {
		us = &UnitState{}
		s.Units[name] = us
	}
	return us
}

type unitWatch struct {
	env   Env
	units []string

	minDown        time.Duration
	restartTimeout time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration

	ctl UnitController
}

func newUnitWatch(env Env, name string, raw json.RawMessage) (schedule.Runner, error) {
	var p unitWatchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	w := &unitWatch{env: env, ctl: env.Units}
	for _, u := range p.Units {
		if u = strings.TrimSpace(u); u != "" {
			w.units = append(w.units, u)
		}
	}
	if len(w.units) == 0 {
		return nil, errors.New("units: at least one unit is required")
	}
	var err error
	if w.minDown, err = durationParam("min_down", p.MinDown, 3*time.Second); err != nil {
		return nil, err
	}
	if w.restartTimeout, err = durationParam("restart_timeout", p.RestartTimeout, 15*time.Second); err != nil {
		return nil, err
	}
	if w.backoffBase, err = durationParam("backoff_base", p.BackoffBase, 5*time.Second); err != nil {
		return nil, err
	}
	if w.backoffMax, err = durationParam("backoff_max", p.BackoffMax, 5*time.Minute); err != nil {
		return nil, err
	}
	w.backoffMax = max(w.backoffMax, w.backoffBase)
	return w, nil
}

func (w *unitWatch) controller(ctx context.Context) (UnitController, error) {
	if w.ctl != nil {
		return w.ctl, nil
	}
	m, err := sm.New(ctx)
	if err != nil {
		return nil, err
	}
	w.ctl = m
	return m, nil
}

func (w *unitWatch) Run(ctx context.Context, jc *schedule.JobContext) {
	ctl, err := w.controller(ctx)
	if err != nil {
		w.env.Log.Warn("unit watch skipped; systemd unavailable", logx.Err(err))
		return
	}
	st := state[UnitWatchState](jc)
	now := w.env.Now()
	for _, u := range w.units {
		w.check(ctx, ctl, u, st.unit(u), now)
	}
}

func (w *unitWatch) check(ctx context.Context, ctl UnitController, unit string, us *UnitState, now time.Time) {
	if us.Missing {
		return
	}
	status, err := ctl.Status(ctx, unit)
	if err != nil {
		w.env.Log.Debug("unit status failed", logx.String("unit", unit), logx.Err(err))
		return
	}
	if status.NotFound() {
		us.Missing = true
		w.env.Log.Warn("unit watch skipping missing unit", logx.String("unit", unit))
		return
	}
	if !status.Down() {
		us.FailStreak = 0
		us.NextTry = time.Time{}
		us.LastErr = ""
		return
	}

	since := status.DownSince()
	if since.IsZero() {
		since = now
	}
	downFor := now.Sub(since)
	if downFor < w.minDown {
		return
	}
	if !us.NextTry.IsZero() && now.Before(us.NextTry) {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, w.restartTimeout)
	err = ctl.Restart(rctx, unit)
	cancel()
	if err == nil {
		us.Restarts++
		us.FailStreak = 0
		us.NextTry = time.Time{}
		us.LastErr = ""
		w.env.Log.Info("unit restarted",
			logx.String("unit", unit),
			logx.String("state", status.Active),
			logx.Duration("down_for", downFor))
		return
	}

	us.FailStreak++
	us.LastErr = err.Error()
	backoff := unitBackoff(w.backoffBase, w.backoffMax, us.FailStreak)
	us.NextTry = now.Add(backoff)
	w.env.Log.Warn("unit restart failed",
		logx.String("unit", unit),
		logx.String("state", status.Active),
		logx.Int("streak", us.FailStreak),
		logx.Duration("backoff", backoff),
		logx.Err(err))
}

// unitBackoff doubles base for every failure after the first, capped at limit.
func unitBackoff(base, limit time.Duration, streak int) time.Duration {
	shift := min(max(streak-1, 0), 30)
	d := base << shift
	if d <= 0 || d > limit {
		return limit
	}
	return d
}
