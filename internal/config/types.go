package config

import (
	"encoding/json"

	"cronloop/internal/schedule"
)

// Config is the daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig      `json:"logging"`
	Scheduler SchedulerConfig    `json:"scheduler"`
	Storage   StorageConfig      `json:"storage"`
	Notifier  NotifierConfig     `json:"notifier"`
	Systemd   SystemdConfig      `json:"systemd"`
	Debug     DebugConfig        `json:"debug"`
	Jobs      map[string]JobSpec `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the scheduler and the driver loop.
type SchedulerConfig struct {
	// Timezone is an IANA name; empty means the local zone.
	Timezone string `json:"timezone,omitempty"`
	// PollInterval is the wait used when no job can say when it is next due.
	PollInterval string `json:"poll_interval,omitempty"`
	// MinTickInterval is the minimum spacing between two ticks.
	MinTickInterval string `json:"min_tick_interval,omitempty"`
}

// StorageConfig selects the run-history backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./cronloop.db", "retention": "168h" }
type StorageConfig struct {
	Driver      string `json:"driver"` // none|file|sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Retention is how long run records are kept by prune-history jobs.
	Retention string `json:"retention,omitempty"`
}

type NotifierConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// Events lists the job event types to deliver; empty means
	// job.panicked and job.fused.
	Events []string `json:"events,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

// DebugConfig enables the operational HTTP endpoint. Empty Addr disables it.
// A non-loopback Addr needs Token or AllowInsecure.
type DebugConfig struct {
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// JobSpec is one entry of the jobs table. The table key is the job name.
type JobSpec struct {
	schedule.JobConfig

	// Kind selects the built-in body (heartbeat, speedtest, prune-history,
	// command, unit-watch).
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}
