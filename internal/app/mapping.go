package app

import (
	"strings"
	"time"

	"cronloop/internal/config"
	"cronloop/internal/debugserver"
	"cronloop/internal/driver"
	"cronloop/internal/notifier"
	"cronloop/internal/storage"
	logx "cronloop/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func notifierConfig(cfg *config.Config) notifier.Config {
	tg := cfg.Notifier.Telegram
	return notifier.Config{
		Enabled:    tg.Enabled,
		ChatID:     tg.ChatID,
		ThreadID:   tg.ThreadID,
		Events:     tg.Events,
		RatePerSec: tg.RatePerSec,
		RetryMax:   2,
	}
}

func driverConfig(cfg *config.Config) (driver.Config, error) {
	minTick, err := config.ParseDurationField("scheduler.min_tick_interval", cfg.Scheduler.MinTickInterval)
	if err != nil {
		return driver.Config{}, err
	}
	return driver.Config{MinTick: minTick, Notify: cfg.Systemd.Notify}, nil
}

func retention(cfg *config.Config) time.Duration {
	d, _ := config.ParseDurationField("storage.retention", cfg.Storage.Retention)
	return d
}

func debugConfig(cfg *config.Config) debugserver.Config {
	return debugserver.Config{
		Addr:          strings.TrimSpace(cfg.Debug.Addr),
		Token:         strings.TrimSpace(cfg.Debug.Token),
		AllowInsecure: cfg.Debug.AllowInsecure,
		Pprof:         cfg.Debug.Pprof,
	}
}
