package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronloop/internal/config"
	"cronloop/internal/jobs"
	"cronloop/internal/schedule"
	"cronloop/internal/storage"
)

func writeConfig(t *testing.T, dir string, jobsJSON string) string {
	t.Helper()
	doc := `{
  "logging": {"level": "error"},
  "scheduler": {"timezone": "UTC", "min_tick_interval": "10ms"},
  "storage": {"driver": "file", "path": "` + filepath.Join(dir, "runs.jsonl") + `"},
  "jobs": ` + jobsJSON + `
}`
	path := filepath.Join(dir, "cronloop.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func newApp(t *testing.T, jobsJSON string) *App {
	t.Helper()
	a, err := New(writeConfig(t, t.TempDir(), jobsJSON))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })
	return a
}

func TestNewRegistersJobs(t *testing.T) {
	a := newApp(t, `{
    "beat": {"kind": "heartbeat", "cron": "@hourly"},
    "prune": {"kind": "prune-history", "cron": "@daily", "params": {"retention": "24h"}}
  }`)

	assert.Equal(t, 2, a.Scheduler().Len())
	j, ok := a.Scheduler().FindByName("prune")
	require.True(t, ok)
	assert.Equal(t, "@daily", j.Expr())
	assert.Equal(t, time.UTC, a.Scheduler().Location())
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(writeConfig(t, t.TempDir(), `{"x": {"kind": "teleport", "cron": "@hourly"}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, jobs.ErrUnknownKind))
}

func TestNewRejectsInvalidCron(t *testing.T) {
	_, err := New(writeConfig(t, t.TempDir(), `{"x": {"kind": "heartbeat", "cron": "every tuesday"}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrInvalidCron))
}

func cloneConfig(t *testing.T, cfg *config.Config) *config.Config {
	t.Helper()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	var out config.Config
	require.NoError(t, json.Unmarshal(b, &out))
	return &out
}

func TestApplyJobChanges(t *testing.T) {
	a := newApp(t, `{
    "gone": {"kind": "heartbeat", "cron": "@hourly"},
    "moved": {"kind": "heartbeat", "cron": "@daily"},
    "paused": {"kind": "heartbeat", "cron": "@hourly", "max-ticks": 5}
  }`)
	sched := a.Scheduler()
	moved, _ := sched.FindByName("moved")
	paused, _ := sched.FindByName("paused")
	movedID, pausedID := moved.ID(), paused.ID()

	next := cloneConfig(t, a.applied)
	delete(next.Jobs, "gone")
	m := next.Jobs["moved"]
	m.Cron = "@hourly"
	next.Jobs["moved"] = m
	p := next.Jobs["paused"]
	p.Disable = true
	two := 2
	p.MaxTicks = &two
	next.Jobs["paused"] = p
	next.Jobs["fresh"] = config.JobSpec{JobConfig: schedule.JobConfig{Cron: "@weekly"}, Kind: "heartbeat"}

	a.apply(next)

	assert.Equal(t, 3, sched.Len())
	_, ok := sched.FindByName("gone")
	assert.False(t, ok)

	moved, ok = sched.FindByName("moved")
	require.True(t, ok)
	assert.NotEqual(t, movedID, moved.ID())
	assert.Equal(t, "@hourly", moved.Expr())

	paused, ok = sched.FindByName("paused")
	require.True(t, ok)
	assert.Equal(t, pausedID, paused.ID())
	info := paused.Info(time.Now())
	assert.True(t, info.Disabled)
	assert.Equal(t, 2, info.Remaining)

	_, ok = sched.FindByName("fresh")
	assert.True(t, ok)
	assert.Same(t, next, a.applied)
}

func TestApplyRaisedRunLimitRebuildsJob(t *testing.T) {
	a := newApp(t, `{
    "limited": {"kind": "heartbeat", "cron": "@hourly", "max-ticks": 2},
    "single": {"kind": "heartbeat", "cron": "@hourly", "once": true}
  }`)
	sched := a.Scheduler()
	limited, _ := sched.FindByName("limited")
	single, _ := sched.FindByName("single")
	limitedID, singleID := limited.ID(), single.ID()

	next := cloneConfig(t, a.applied)
	l := next.Jobs["limited"]
	five := 5
	l.MaxTicks = &five
	next.Jobs["limited"] = l
	o := next.Jobs["single"]
	o.Once = false
	next.Jobs["single"] = o

	a.apply(next)

	limited, ok := sched.FindByName("limited")
	require.True(t, ok)
	assert.NotEqual(t, limitedID, limited.ID())
	assert.Equal(t, 5, limited.Info(time.Now()).Remaining)

	single, ok = sched.FindByName("single")
	require.True(t, ok)
	assert.NotEqual(t, singleID, single.ID())
	assert.Equal(t, -1, single.Info(time.Now()).Remaining)
}

func TestApplyWithoutChangesKeepsJobs(t *testing.T) {
	a := newApp(t, `{"beat": {"kind": "heartbeat", "cron": "@hourly"}}`)
	j, _ := a.Scheduler().FindByName("beat")

	a.apply(cloneConfig(t, a.applied))

	again, ok := a.Scheduler().FindByName("beat")
	require.True(t, ok)
	assert.Equal(t, j.ID(), again.ID())
}

func TestValidateRejectsBadParams(t *testing.T) {
	a := newApp(t, `{"beat": {"kind": "heartbeat", "cron": "@hourly"}}`)
	next := cloneConfig(t, a.applied)
	next.Jobs["cmd"] = config.JobSpec{JobConfig: schedule.JobConfig{Cron: "@hourly"}, Kind: "command"}

	assert.Error(t, a.validate(context.Background(), next))
}

func TestStartRunsJobsAndRecordsHistory(t *testing.T) {
	a := newApp(t, `{"beat": {"kind": "heartbeat", "cron": "@every 1s", "immediate": true, "once": true}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.Error(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		recs, err := a.store.RecentRuns(context.Background(), storage.Query{JobName: "beat", Event: schedule.EventRemoved})
		return err == nil && len(recs) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, a.Scheduler().Len())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}
