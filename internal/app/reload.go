package app

import (
	"context"
	"strings"

	"cronloop/internal/config"
	"cronloop/internal/jobs"
	logx "cronloop/pkg/logx"
)

// validate rejects a reloaded config whose jobs would not build.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	a.mu.Lock()
	env := a.env
	a.mu.Unlock()
	_, err := jobs.BuildAll(env, cfg)
	return err
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts: only the newest config matters
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			if cfg != nil {
				a.apply(cfg)
			}
		}
	}
}

// apply brings the running components in line with cfg. Scheduler, storage,
// systemd and debug settings are only read at startup.
func (a *App) apply(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sections, fields, changes := config.SummarizeChange(a.applied, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config change", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)

	for _, s := range sections {
		switch s {
		case "logging":
			if err := a.logs.Apply(logConfig(cfg)); err != nil {
				a.log.Warn("log file unavailable; logging to console", logx.Err(err))
			}
		case "notifier":
			a.notif.Apply(notifierConfig(cfg))
		case "scheduler", "storage", "systemd", "debug":
			a.log.Warn("config section changed; restart to apply", logx.String("section", s))
		}
	}
	a.env.Retention = retention(cfg)

	if !changes.Empty() {
		a.applyJobs(cfg, changes)
		a.drv.Wake()
	}
	a.applied = cfg
}

// applyJobs registers new jobs, drops removed ones and rebuilds changed ones.
// Toggled jobs are updated in place so their catch-up window is kept.
func (a *App) applyJobs(cfg *config.Config, changes config.JobChanges) {
	for _, name := range changes.Removed {
		a.removeJob(name)
	}
	for _, name := range changes.Changed {
		a.removeJob(name)
		a.addJob(name, cfg.Jobs[name])
	}
	for _, name := range changes.Added {
		a.addJob(name, cfg.Jobs[name])
	}
	for _, name := range changes.Toggled {
		j, ok := a.sched.FindByName(name)
		if !ok {
			// fused and pruned already
			continue
		}
		j.Update(cfg.Jobs[name].JobConfig.Apply)
		a.log.Info("job updated", logx.String("job", name))
	}
}

func (a *App) removeJob(name string) {
	if j, ok := a.sched.FindByName(name); ok {
		a.sched.Remove(j.ID())
	}
}

func (a *App) addJob(name string, spec config.JobSpec) {
	j, err := jobs.Build(a.env, name, spec)
	if err != nil {
		a.log.Error("job rebuild failed", logx.String("job", name), logx.Err(err))
		return
	}
	a.sched.Add(j)
}
