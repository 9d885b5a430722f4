package jobs

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronloop/internal/config"
	"cronloop/internal/schedule"
	"cronloop/internal/storage"
	logx "cronloop/pkg/logx"
	"cronloop/pkg/speedtest"
	sm "cronloop/pkg/systemdmanager"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedNow(t *time.Time) func() time.Time { return func() time.Time { return *t } }

func spec(kind, cron, params string) config.JobSpec {
	s := config.JobSpec{JobConfig: schedule.JobConfig{Cron: cron}, Kind: kind}
	if params != "" {
		s.Params = json.RawMessage(params)
	}
	return s
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "runs.jsonl")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func runOnce(t *testing.T, env Env, kind, params string) *schedule.JobContext {
	t.Helper()
	j, err := Build(env, "j", spec(kind, "@every 1m", params))
	require.NoError(t, err)
	j.Execute(context.Background())
	return j.Context()
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{"command", "heartbeat", "prune-history", "speedtest", "unit-watch"}, Kinds())
}

func TestBuild(t *testing.T) {
	five := 5
	s := spec("Heartbeat", "*/5 * * * *", `{"message":"hi"}`)
	s.Immediate = true
	s.MaxTicks = &five

	j, err := Build(Env{}, "beat", s)
	require.NoError(t, err)
	info := j.Info(epoch)
	assert.Equal(t, "beat", info.Name)
	assert.Equal(t, "*/5 * * * *", info.Expr)
	assert.True(t, info.Immediate)
	assert.Equal(t, 5, info.Remaining)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Env{}, "x", spec("nope", "@hourly", ""))
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = Build(Env{}, "x", spec("heartbeat", "not a cron", ""))
	assert.True(t, errors.Is(err, schedule.ErrInvalidCron))
	assert.Contains(t, err.Error(), "jobs.x.cron")

	_, err = Build(Env{}, "x", spec("heartbeat", "@hourly", `{"msg":"typo"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs.x.params")
}

func TestBuildAll(t *testing.T) {
	cfg := &config.Config{Jobs: map[string]config.JobSpec{
		"b":   spec("heartbeat", "@hourly", ""),
		"a":   spec("heartbeat", "@daily", ""),
		"bad": spec("heartbeat", "", ""),
	}}
	jobs, err := BuildAll(Env{}, cfg)
	require.Error(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name())
	assert.Equal(t, "b", jobs[1].Name())
}

func TestHeartbeatCountsInData(t *testing.T) {
	now := epoch
	j, err := Build(Env{Now: fixedNow(&now)}, "beat", spec("heartbeat", "@every 1m", ""))
	require.NoError(t, err)

	j.Execute(context.Background())
	now = epoch.Add(time.Minute)
	j.Execute(context.Background())

	st, ok := j.Context().Data().(*HeartbeatState)
	require.True(t, ok)
	assert.Equal(t, uint64(2), st.Beats)
	assert.Equal(t, now, st.Last)
}

type fakeMeasurer struct {
	results []*speedtest.Result
	err     error
	calls   int
}

func (f *fakeMeasurer) Run(ctx context.Context) (*speedtest.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := f.results[(f.calls-1)%len(f.results)]
	return r, nil
}

func TestSpeedtestKeepsResultsAndRecords(t *testing.T) {
	store := openStore(t)
	now := epoch
	m := &fakeMeasurer{results: []*speedtest.Result{
		{Timestamp: epoch, DownloadMbps: 100, PingMs: 10, ServerName: "a"},
		{Timestamp: epoch.Add(time.Hour), DownloadMbps: 50, PingMs: 20, ServerName: "b"},
	}}
	var got SpeedtestParams
	env := Env{
		Store: store,
		Now:   fixedNow(&now),
		Measurer: func(p SpeedtestParams) Measurer {
			got = p
			return m
		},
	}
	j, err := Build(env, "net", spec("speedtest", "@hourly", `{"servers":3,"keep":1,"skip_upload":true}`))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Servers)
	assert.True(t, got.SkipUpload)

	j.Execute(context.Background())
	j.Execute(context.Background())

	st := j.Context().Data().(*SpeedtestState)
	require.Len(t, st.Results, 1)
	assert.Equal(t, "b", st.Results[0].ServerName)

	recs, err := store.RecentRuns(context.Background(), storage.Query{Event: EventSpeedtestResult})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "net", recs[0].JobName)
	assert.Contains(t, recs[0].Detail, `"server_name":"b"`)
}

func TestSpeedtestFailure(t *testing.T) {
	store := openStore(t)
	m := &fakeMeasurer{err: errors.New("no servers")}
	env := Env{Store: store, Measurer: func(SpeedtestParams) Measurer { return m }}

	jc := runOnce(t, env, "speedtest", "")
	st := jc.Data().(*SpeedtestState)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, "no servers", st.LastErr)

	recs, err := store.RecentRuns(context.Background(), storage.Query{Event: EventSpeedtestError})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "no servers", recs[0].Detail)
}

func TestPruneHistory(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := epoch.Add(10 * 24 * time.Hour)
	for _, at := range []time.Time{epoch, now.Add(-time.Hour)} {
		require.NoError(t, store.AppendRun(ctx, storage.RunRecord{At: at, JobID: "x", Event: schedule.EventFinished}))
	}

	jc := runOnce(t, Env{Store: store, Retention: 24 * time.Hour, Now: fixedNow(&now)}, "prune-history", "")
	st := jc.Data().(*PruneState)
	assert.Equal(t, 1, st.Deleted)

	recs, err := store.RecentRuns(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPruneHistoryParamOverridesRetention(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := epoch.Add(time.Hour)
	require.NoError(t, store.AppendRun(ctx, storage.RunRecord{At: epoch, JobID: "x", Event: schedule.EventFinished}))

	runOnce(t, Env{Store: store, Retention: 48 * time.Hour, Now: fixedNow(&now)}, "prune-history", `{"retention":"30m"}`)
	recs, err := store.RecentRuns(ctx, storage.Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPruneHistoryWithoutStore(t *testing.T) {
	jc := runOnce(t, Env{}, "prune-history", "")
	assert.Nil(t, jc.Data())
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommand(t *testing.T) {
	requireShell(t)
	jc := runOnce(t, Env{}, "command", `{"argv":["sh","-c","echo $GREETING; exit 3"],"env":["GREETING=hello"]}`)
	st := jc.Data().(*CommandState)
	assert.Equal(t, uint64(1), st.Runs)
	assert.Equal(t, 3, st.ExitCode)
	assert.Equal(t, "hello\n", st.Output)
	assert.NotEmpty(t, st.Err)
}

func TestCommandSuccess(t *testing.T) {
	requireShell(t)
	jc := runOnce(t, Env{}, "command", `{"argv":["sh","-c","pwd"],"dir":"/"}`)
	st := jc.Data().(*CommandState)
	assert.Equal(t, 0, st.ExitCode)
	assert.Equal(t, "/\n", st.Output)
	assert.Empty(t, st.Err)
}

func TestCommandTimeout(t *testing.T) {
	requireShell(t)
	jc := runOnce(t, Env{}, "command", `{"argv":["sh","-c","sleep 5"],"timeout":"50ms"}`)
	st := jc.Data().(*CommandState)
	assert.Equal(t, -1, st.ExitCode)
	assert.Contains(t, st.Err, "timed out")
}

func TestCommandParams(t *testing.T) {
	_, err := Build(Env{}, "x", spec("command", "@hourly", `{"argv":[]}`))
	assert.Error(t, err)
	_, err = Build(Env{}, "x", spec("command", "@hourly", `{"argv":["true"],"env":["NOEQUALS"]}`))
	assert.Error(t, err)
	_, err = Build(Env{}, "x", spec("command", "@hourly", `{"argv":["true"],"timeout":"soon"}`))
	assert.Error(t, err)
}

type fakeUnits struct {
	status   map[string]sm.UnitStatus
	restarts []string
	failNext int
}

func (f *fakeUnits) Status(_ context.Context, name string) (sm.UnitStatus, error) {
	st, ok := f.status[name]
	if !ok {
		return sm.UnitStatus{Name: name, LoadState: "not-found"}, nil
	}
	return st, nil
}

func (f *fakeUnits) Restart(_ context.Context, name string) error {
	f.restarts = append(f.restarts, name)
	if f.failNext > 0 {
		f.failNext--
		return errors.New("job failed")
	}
	st := f.status[name]
	st.Active = "active"
	f.status[name] = st
	return nil
}

func TestUnitWatchRestartsDownUnits(t *testing.T) {
	now := epoch
	units := &fakeUnits{status: map[string]sm.UnitStatus{
		"app":   {Active: "failed", LoadState: "loaded", InactiveSince: epoch.Add(-time.Minute)},
		"fresh": {Active: "inactive", LoadState: "loaded", InactiveSince: epoch.Add(-time.Second)},
		"ok":    {Active: "active", LoadState: "loaded"},
	}}
	env := Env{Units: units, Now: fixedNow(&now)}
	jc := runOnce(t, env, "unit-watch", `{"units":["app","fresh","ok","gone"]}`)

	assert.Equal(t, []string{"app"}, units.restarts)
	st := jc.Data().(*UnitWatchState)
	assert.Equal(t, 1, st.Units["app"].Restarts)
	assert.True(t, st.Units["gone"].Missing)
	assert.False(t, st.Units["fresh"].Missing)
}

func TestUnitWatchBacksOff(t *testing.T) {
	now := epoch
	units := &fakeUnits{
		status:   map[string]sm.UnitStatus{"app": {Active: "failed", LoadState: "loaded", InactiveSince: epoch.Add(-time.Hour)}},
		failNext: 2,
	}
	env := Env{Units: units, Now: fixedNow(&now)}
	j, err := Build(env, "watch", spec("unit-watch", "@every 1s", `{"units":["app"],"backoff_base":"10s","backoff_max":"15s"}`))
	require.NoError(t, err)
	ctx := context.Background()

	j.Execute(ctx) // fails, next try at +10s
	now = epoch.Add(5 * time.Second)
	j.Execute(ctx) // still backing off
	assert.Len(t, units.restarts, 1)

	now = epoch.Add(10 * time.Second)
	j.Execute(ctx) // fails again, backoff capped at 15s
	us := j.Context().Data().(*UnitWatchState).Units["app"]
	assert.Equal(t, 2, us.FailStreak)
	assert.Equal(t, now.Add(15*time.Second), us.NextTry)

	now = now.Add(15 * time.Second)
	j.Execute(ctx)
	assert.Len(t, units.restarts, 3)
	assert.Equal(t, 0, us.FailStreak)
	assert.Equal(t, 1, us.Restarts)
}

func TestUnitWatchParams(t *testing.T) {
	_, err := Build(Env{}, "x", spec("unit-watch", "@hourly", `{"units":[" "]}`))
	assert.Error(t, err)
}

func TestUnitBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, unitBackoff(5*time.Second, time.Minute, 1))
	assert.Equal(t, 20*time.Second, unitBackoff(5*time.Second, time.Minute, 3))
	assert.Equal(t, time.Minute, unitBackoff(5*time.Second, time.Minute, 10))
	assert.Equal(t, time.Minute, unitBackoff(5*time.Second, time.Minute, 100))
}
