package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobConfigFromMap(t *testing.T) {
	cfg, err := JobConfigFromMap(map[string]any{
		"cron":      "*/5 * * * *",
		"disable":   "true",
		"immediate": true,
		"max-ticks": float64(3),
		"other":     "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", cfg.Cron)
	assert.True(t, cfg.Disable)
	assert.True(t, cfg.Immediate)
	assert.False(t, cfg.Once)
	require.NotNil(t, cfg.MaxTicks)
	assert.Equal(t, 3, *cfg.MaxTicks)
}

func TestJobConfigFromMapErrors(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
	}{
		{name: "cron type", in: map[string]any{"cron": 5}},
		{name: "bool string", in: map[string]any{"once": "sometimes"}},
		{name: "bool type", in: map[string]any{"immediate": 1}},
		{name: "negative ticks", in: map[string]any{"max-ticks": -1}},
		{name: "fractional ticks", in: map[string]any{"max-ticks": 1.5}},
		{name: "ticks type", in: map[string]any{"max-ticks": []int{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JobConfigFromMap(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	three := 3
	j, err := NewFromConfig(JobConfig{Cron: "* * * * *", Immediate: true, MaxTicks: &three}, nil)
	require.NoError(t, err)
	info := j.Info(epoch)
	assert.True(t, info.Immediate)
	assert.False(t, info.Disabled)
	assert.Equal(t, 3, info.Remaining)
}

func TestNewFromConfigOnceWins(t *testing.T) {
	five := 5
	j, err := NewFromConfig(JobConfig{Cron: "* * * * *", Once: true, MaxTicks: &five}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, j.Info(epoch).Remaining)
}

func TestNewFromConfigInvalidCron(t *testing.T) {
	_, err := NewFromConfig(JobConfig{Cron: "every tuesday"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCron))

	_, err = NewFromConfig(JobConfig{}, nil)
	assert.True(t, errors.Is(err, ErrInvalidCron))
}

func TestNewFromConfigDisabledJobIsScheduledButSkipped(t *testing.T) {
	runs := 0
	j, err := NewFromConfig(JobConfig{Cron: "* * * * *", Disable: true, Immediate: true}, counter(&runs))
	require.NoError(t, err)
	j.Tick(context.Background(), epoch)
	j.Tick(context.Background(), epoch.Add(2*time.Minute))
	assert.Equal(t, 0, runs)
}
