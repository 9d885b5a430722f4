package schedule

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// JobConfig holds the per-job options recognized from configuration.
//
// MaxTicks is ignored when Once is set.
type JobConfig struct {
	Cron      string `json:"cron" yaml:"cron" toml:"cron"`
	Disable   bool   `json:"disable,omitempty" yaml:"disable,omitempty" toml:"disable,omitempty"`
	Immediate bool   `json:"immediate,omitempty" yaml:"immediate,omitempty" toml:"immediate,omitempty"`
	Once      bool   `json:"once,omitempty" yaml:"once,omitempty" toml:"once,omitempty"`
	MaxTicks  *int   `json:"max-ticks,omitempty" yaml:"max-ticks,omitempty" toml:"max-ticks,omitempty"`
}

// NewFromConfig builds a job from cfg. A missing or invalid cron expression
// is an error marked with ErrInvalidCron.
func NewFromConfig(cfg JobConfig, run Runner) (*Job, error) {
	j, err := New(cfg.Cron, run)
	if err != nil {
		return nil, err
	}
	j.Update(cfg.Apply)
	return j, nil
}

// Apply sets the options of cfg on jc. A run bound already in place can only
// shrink.
func (cfg JobConfig) Apply(jc *JobContext) {
	jc.SetDisabled(cfg.Disable)
	jc.SetImmediate(cfg.Immediate)
	switch {
	case cfg.Once:
		jc.SetRemainingTicks(1)
	case cfg.MaxTicks != nil:
		jc.SetRemainingTicks(*cfg.MaxTicks)
	}
}

// JobConfigFromMap reads the recognized options from an already-parsed
// key/value table. Unknown keys are ignored.
func JobConfigFromMap(m map[string]any) (JobConfig, error) {
	var cfg JobConfig
	if v, ok := m["cron"]; ok {
		s, ok := v.(string)
		if !ok {
			return cfg, errors.Newf("cron: expected string, got %T", v)
		}
		cfg.Cron = s
	}
	var err error
	if cfg.Disable, err = boolOpt(m, "disable"); err != nil {
		return cfg, err
	}
	if cfg.Immediate, err = boolOpt(m, "immediate"); err != nil {
		return cfg, err
	}
	if cfg.Once, err = boolOpt(m, "once"); err != nil {
		return cfg, err
	}
	if v, ok := m["max-ticks"]; ok {
		n, err := toUint(v)
		if err != nil {
			return cfg, errors.Wrap(err, "max-ticks")
		}
		cfg.MaxTicks = &n
	}
	return cfg, nil
}

func boolOpt(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, errors.Wrapf(err, "%s", key)
		}
		return b, nil
	default:
		return false, errors.Newf("%s: expected bool, got %T", key, v)
	}
}

func toUint(v any) (int, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		n = int64(x)
	case float64:
		if x != float64(int64(x)) {
			return 0, errors.Newf("expected integer, got %v", x)
		}
		n = int64(x)
	case string:
		p, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, err
		}
		n = p
	default:
		return 0, errors.Newf("expected unsigned integer, got %T", v)
	}
	if n < 0 {
		return 0, errors.Newf("expected unsigned integer, got %d", n)
	}
	return int(n), nil
}
