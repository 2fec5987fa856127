package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/pkg/api"
)

func TestFlowContextImmutable(t *testing.T) {
	fc := api.NewFlowContext("run-1", "req-1")

	res := fc.UpsertStep("step_1", api.ActionCode, api.StepSucceeded).
		SetVerdict(api.Failed(&api.FailedStep{Name: "step_1"})).
		AddTags("a", "b").
		IncreaseStepsCount().
		SetDuration(42)

	assert.Empty(t, fc.Steps)
	assert.True(t, fc.Verdict.IsRunning())
	assert.Empty(t, fc.Tags)
	assert.Equal(t, 0, fc.StepsCount)

	assert.Len(t, res.Steps, 1)
	assert.Equal(t, api.VerdictFailed, res.Verdict.Status)
	assert.Equal(t, []string{"a", "b"}, res.Tags)
	assert.Equal(t, 1, res.StepsCount)
	assert.Equal(t, int64(42), res.Duration)
}

func TestAddTagsDeduplicates(t *testing.T) {
	fc := api.NewFlowContext("run", "").AddTags("x", "y")
	res := fc.AddTags("y", "z", "x")

	assert.Equal(t, []string{"x", "y", "z"}, res.Tags)
	assert.Equal(t, []string{"x", "y"}, fc.Tags)
}

func TestUpsertStepInsideIteration(t *testing.T) {
	fc := api.NewFlowContext("run", "").
		UpsertStep("loop", api.ActionLoop, api.StepRunning)
	inner := fc.EnsureIteration("loop", 1).
		SetCurrentPath(api.NewPath().LoopIteration("loop", 1)).
		UpsertStep("body", api.ActionCode, api.StepSucceeded)

	loop := inner.Steps["loop"]
	if assert.Len(t, loop.Iterations, 2) {
		assert.Empty(t, loop.Iterations[0])
		ref := loop.Iterations[1]["body"]
		if assert.NotNil(t, ref) {
			assert.Equal(t, "loop:1", ref.Path.Key())
			assert.Equal(t, api.StepSucceeded, ref.Status)
		}
	}
	_, top := inner.Steps["body"]
	assert.False(t, top)
	assert.Empty(t, fc.Steps["loop"].Iterations)
}

func TestUpsertStepKeepsIterations(t *testing.T) {
	fc := api.NewFlowContext("run", "").
		UpsertStep("loop", api.ActionLoop, api.StepRunning).
		EnsureIteration("loop", 2).
		UpsertStep("loop", api.ActionLoop, api.StepSucceeded)

	assert.Len(t, fc.Steps["loop"].Iterations, 3)
	assert.Equal(t, api.StepSucceeded, fc.Steps["loop"].Status)
}

func TestVisibleSteps(t *testing.T) {
	path := api.NewPath().LoopIteration("loop", 0)
	fc := api.NewFlowContext("run", "").
		UpsertStep("trigger", api.ActionTrigger, api.StepSucceeded).
		UpsertStep("loop", api.ActionLoop, api.StepRunning).
		EnsureIteration("loop", 0).
		SetCurrentPath(path).
		UpsertStep("inner", api.ActionCode, api.StepSucceeded)

	visible := fc.VisibleSteps()
	assert.Equal(t, []string{"inner", "loop", "trigger"}, visible.Names())

	top := fc.SetCurrentPath(api.NewPath()).VisibleSteps()
	assert.Equal(t, []string{"loop", "trigger"}, top.Names())
}

func TestIsCompleted(t *testing.T) {
	fc := api.NewFlowContext("run", "").
		UpsertStep("done", api.ActionCode, api.StepSucceeded).
		UpsertStep("failed", api.ActionCode, api.StepFailed).
		UpsertStep("waiting", api.ActionPiece, api.StepPaused)

	assert.True(t, fc.IsCompleted("done"))
	assert.True(t, fc.IsCompleted("failed"))
	assert.False(t, fc.IsCompleted("waiting"))
	assert.True(t, fc.IsPaused("waiting"))
	assert.False(t, fc.IsCompleted("missing"))
}

func TestReconstruct(t *testing.T) {
	path := api.NewPath().LoopIteration("loop", 0)
	fc := api.NewFlowContext("run", "").
		UpsertStep("ok", api.ActionCode, api.StepSucceeded).
		UpsertStep("bad", api.ActionCode, api.StepFailed).
		UpsertStep("loop", api.ActionLoop, api.StepPaused).
		EnsureIteration("loop", 0).
		SetCurrentPath(path).
		UpsertStep("wait", api.ActionPiece, api.StepPaused).
		UpsertStep("oops", api.ActionCode, api.StepRunning)

	res := api.Reconstruct("run", "req", fc.Steps)

	assert.Equal(t, []string{"loop", "ok"}, res.Steps.Names())
	assert.Equal(t, "req", res.PauseRequestID)
	assert.True(t, res.Verdict.IsRunning())
	assert.Equal(t, 0, res.CurrentPath.Len())
	assert.Equal(t,
		[]string{"wait"}, res.Steps["loop"].Iterations[0].Names(),
	)
	assert.True(t, res.SetCurrentPath(path).IsPaused("wait"))
}

func TestVerdictRunStatus(t *testing.T) {
	assert.Equal(t, api.RunSucceeded, api.Running().RunStatus())
	assert.Equal(t, api.RunSucceeded, api.Succeeded().RunStatus())
	assert.Equal(t, api.RunStopped, api.Stopped("bye").RunStatus())
	assert.Equal(t, api.RunStopped, api.Stopped(nil).RunStatus())
	assert.Equal(t, api.RunFailed, api.Failed(nil).RunStatus())
	assert.Equal(t, api.RunPaused, api.Paused(nil).RunStatus())
	assert.Equal(t, api.RunTimeout,
		api.TimedOut(&api.FailedStep{Message: "x"}).RunStatus(),
	)
	assert.Equal(t, api.RunInternalError,
		api.InternalError("boom").RunStatus(),
	)
	assert.False(t, api.RunPaused.IsTerminal())
	assert.True(t, api.RunFailed.IsTerminal())
}
