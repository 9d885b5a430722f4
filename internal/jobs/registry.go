package jobs

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"cronloop/internal/config"
	"cronloop/internal/schedule"
	"cronloop/internal/storage"
	logx "cronloop/pkg/logx"
)

// ErrUnknownKind marks a job entry naming a kind that is not registered.
var ErrUnknownKind = errors.New("unknown job kind")

// Env carries the shared dependencies job bodies may use. Nil members are
// tolerated: bodies that need them log and skip.
type Env struct {
	Log logx.Logger

	// Store receives speedtest results and is pruned by prune-history.
	Store storage.Store
	// Retention is the default age cut-off for prune-history.
	Retention time.Duration

	// Measurer builds the speedtest client; nil uses pkg/speedtest.
	Measurer func(params SpeedtestParams) Measurer
	// Units controls systemd units; nil connects to the system bus on
	// first use.
	Units UnitController

	Now func() time.Time
}

func (e Env) withDefaults() Env {
	if e.Log.IsZero() {
		e.Log = logx.Nop()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Measurer == nil {
		e.Measurer = defaultMeasurer
	}
	return e
}

// Factory builds the body of one job from its raw params.
type Factory func(env Env, name string, params json.RawMessage) (schedule.Runner, error)

const (
	KindHeartbeat    = "heartbeat"
	KindSpeedtest    = "speedtest"
	KindPruneHistory = "prune-history"
	KindCommand      = "command"
	KindUnitWatch    = "unit-watch"
)

var kinds = map[string]Factory{
	KindHeartbeat:    newHeartbeat,
	KindSpeedtest:    newSpeedtest,
	KindPruneHistory: newPruneHistory,
	KindCommand:      newCommand,
	KindUnitWatch:    newUnitWatch,
}

// Kinds returns the registered kind names, sorted.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build turns one jobs table entry into a named scheduler job.
func Build(env Env, name string, spec config.JobSpec) (*schedule.Job, error) {
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	factory, ok := kinds[kind]
	if !ok {
		return nil, errors.Mark(errors.Newf("jobs.%s.kind: unknown kind %q", name, spec.Kind), ErrUnknownKind)
	}
	env = env.withDefaults()
	env.Log = env.Log.With(logx.String("job", name), logx.String("kind", kind))

	run, err := factory(env, name, spec.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "jobs.%s.params", name)
	}
	j, err := schedule.NewFromConfig(spec.JobConfig, run)
	if err != nil {
		return nil, errors.Wrapf(err, "jobs.%s.cron", name)
	}
	return j.Named(name), nil
}

// BuildAll builds every job of cfg in name order. It reports all failures.
func BuildAll(env Env, cfg *config.Config) ([]*schedule.Job, error) {
	var (
		out  []*schedule.Job
		errs []error
	)
	for _, name := range cfg.JobNames() {
		j, err := Build(env, name, cfg.Jobs[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, j)
	}
	return out, errors.Join(errs...)
}

// decodeParams strictly decodes raw into dst. Missing params leave dst as is.
func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode params")
	}
	return nil
}

func durationParam(field, raw string, def time.Duration) (time.Duration, error) {
	return config.ParseDurationOrDefault(field, raw, def)
}

// state returns the value of type *T kept in jc, creating it on first use.
func state[T any](jc *schedule.JobContext) *T {
	if s, ok := jc.Data().(*T); ok && s != nil {
		return s
	}
	s := new(T)
	jc.SetData(s)
	return s
}
