package jobs

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"cronloop/internal/schedule"
	logx "cronloop/pkg/logx"
)

type commandParams struct {
	Argv    []string `json:"argv"`
	Timeout string   `json:"timeout,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	// Env entries are KEY=VALUE, appended to the daemon's environment.
	Env []string `json:"env,omitempty"`
}

// CommandState is the data of a command job.
type CommandState struct {
	Runs     uint64
	ExitCode int // -1 when the process could not be started or was killed
	Output   string
	Err      string
	LastRun  time.Time
}

// maxOutput bounds the captured output tail kept in job data.
const maxOutput = 4 << 10

func newCommand(env Env, name string, raw json.RawMessage) (schedule.Runner, error) {
	var p commandParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Argv) == 0 || strings.TrimSpace(p.Argv[0]) == "" {
		return nil, errors.New("argv: required")
	}
	for _, kv := range p.Env {
		if !strings.Contains(kv, "=") {
			return nil, errors.Newf("env: %q is not KEY=VALUE", kv)
		}
	}
	timeout, err := durationParam("timeout", p.Timeout, time.Minute)
	if err != nil {
		return nil, err
	}

	return schedule.RunnerFunc(func(ctx context.Context, jc *schedule.JobContext) {
		st := state[CommandState](jc)
		st.Runs++
		st.LastRun = env.Now()

		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		cmd := exec.CommandContext(cctx, p.Argv[0], p.Argv[1:]...)
		cmd.Dir = p.Dir
		// children that inherit the output pipe must not outlive the timeout
		cmd.WaitDelay = time.Second
		if len(p.Env) > 0 {
			cmd.Env = append(os.Environ(), p.Env...)
		}
		out, err := cmd.CombinedOutput()
		st.Output = tail(string(out), maxOutput)
		st.ExitCode = cmd.ProcessState.ExitCode()
		st.Err = ""

		if err != nil {
			if cctx.Err() != nil && ctx.Err() == nil {
				err = errors.Wrapf(err, "timed out after %s", timeout)
			}
			st.Err = err.Error()
			env.Log.Warn("command failed",
				logx.String("argv0", p.Argv[0]),
				logx.Int("exit", st.ExitCode),
				logx.Err(err))
			return
		}
		env.Log.Info("command finished",
			logx.String("argv0", p.Argv[0]),
			logx.Int("exit", st.ExitCode),
			logx.Int("output_bytes", len(out)))
	}), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
