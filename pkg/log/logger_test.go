package log_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/pkg/log"
)

func TestNewLoggers(t *testing.T) {
	assert.NotNil(t, log.New("worker", "test", "dev"))
	assert.NotNil(t, log.NewWithLevel("worker", "test", "dev", slog.LevelDebug))
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewConsole(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("visible", log.RunID("run-1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "run-1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, log.ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, log.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, log.ParseLevel("bogus"))
}

func TestAttrs(t *testing.T) {
	assert.Equal(t, "run_id", log.RunID("r").Key)
	assert.Equal(t, "step_name", log.StepName("s").Key)
	assert.Equal(t, "action_type", log.ActionType("CODE").Key)
	assert.Equal(t, "status", log.Status("FAILED").Key)
	assert.Equal(t, "operation", log.Operation("EXECUTE_FLOW").Key)
	assert.Equal(t, "boom", log.Error(errors.New("boom")).Value.String())
	assert.Equal(t, "", log.Error(nil).Value.String())
	assert.Equal(t, "msg", log.ErrorString("msg").Value.String())
}
