package assert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/internal/config"
	"github.com/kode4food/argyll/worker/pkg/api"
)

type (
	// StepGetter reads persisted step outputs
	StepGetter interface {
		Get(
			ctx context.Context, runID, stepName string,
			path api.StepExecutionPath,
		) (*api.StepOutput, error)
	}

	// Wrapper wraps testify assertions with worker-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
		Require *assert.Assertions
	}
)

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus worker-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.CodeTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Verdict asserts the verdict status of a flow context
func (w *Wrapper) Verdict(fc *api.FlowContext, expected api.VerdictStatus) {
	w.Helper()
	if w.NotNil(fc) {
		w.Equal(expected, fc.Verdict.Status, "verdict: %+v", fc.Verdict)
	}
}

// StepNames asserts the names of the steps visible at the top level of a
// flow context
func (w *Wrapper) StepNames(fc *api.FlowContext, names ...string) {
	w.Helper()
	if len(names) == 0 {
		w.Empty(fc.Steps)
		return
	}
	w.Equal(names, fc.Steps.Names())
}

// StepStatus asserts the persisted status of a step at a path
func (w *Wrapper) StepStatus(
	get StepGetter, runID, stepName string, path api.StepExecutionPath,
	expected api.StepStatus,
) *api.StepOutput {
	w.Helper()
	so, err := get.Get(context.Background(), runID, stepName, path)
	if !w.NoError(err, "failed to get step: %s", stepName) {
		return nil
	}
	w.Equal(expected, so.Status, "step %s", stepName)
	return so
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
