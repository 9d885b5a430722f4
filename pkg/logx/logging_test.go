package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("component", "scheduler"))

	log.Info("job registered", String("job", "backup"), Int("remaining", 3), Err(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "job registered", rec["message"])
	assert.Equal(t, "scheduler", rec["component"])
	assert.Equal(t, "backup", rec["job"])
	assert.EqualValues(t, 3, rec["remaining"])
	assert.Equal(t, "boom", rec["err"])
	assert.Contains(t, rec["caller"], "logging_test.go")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")

	log.Debug("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Error("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cronloop.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("written")
	require.NoError(t, svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}}))
	assert.False(t, log.Enabled(LevelInfo), "logger follows Apply")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("warning", LevelInfo))
	assert.Equal(t, LevelInfo, ParseLevel("bogus", LevelInfo))
}

func TestServiceApplyReportsUnopenableFile(t *testing.T) {
	dir := t.TempDir()
	svc, log := New(Config{Level: "info"})
	t.Cleanup(func() { _ = svc.Close() })

	err := svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: filepath.Join(dir, "missing", "x.log")}})
	require.Error(t, err)
	assert.True(t, log.Enabled(LevelDebug), "level applies even when the file sink fails")
}

func TestNopIsSilent(t *testing.T) {
	log := Nop().With(String("k", "v"))
	assert.False(t, log.Enabled(LevelError))
	log.Error("dropped")
}
