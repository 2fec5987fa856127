package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
)

// ExecuteFlow runs a flow from its trigger, or resumes it from the steps
// recorded before it paused
func (e *Engine) ExecuteFlow(
	ctx context.Context, in *api.ExecuteFlowInput,
) (*api.RunResult, error) {
	if err := in.FlowVersion.Validate(); err != nil {
		return nil, err
	}
	c := e.flowConstants(in)
	trigger := in.FlowVersion.Trigger

	var fc *api.FlowContext
	switch in.ExecutionType {
	case api.ExecutionResume:
		fc = api.Reconstruct(in.RunID, in.PauseRequestID, in.Steps)
	default:
		fc = api.NewFlowContext(in.RunID, in.PauseRequestID)
		out := api.NewStepOutput(api.ActionTrigger, nil).
			SetOutput(in.TriggerPayload).
			SetStatus(api.StepSucceeded)
		err := e.steps.Save(ctx, in.RunID, trigger.StepName(), fc.CurrentPath,
			out)
		if err != nil {
			return nil, err
		}
		fc = fc.UpsertStep(
			trigger.StepName(), api.ActionTrigger, api.StepSucceeded,
		)
	}

	slog.Info("Run started",
		log.RunID(in.RunID),
		slog.String("execution_type", string(in.ExecutionType)))

	fc, err := e.Execute(ctx, trigger.NextAction, fc, c)
	if err != nil {
		return nil, err
	}
	if c.Progress != nil {
		c.Progress.Flush(ctx, fc)
	}

	res, err := e.RunResult(ctx, fc)
	if err != nil {
		return nil, err
	}
	if e.archive != nil {
		if err := e.archive.Archive(ctx, res); err != nil {
			slog.Error("Failed to archive run",
				log.RunID(in.RunID),
				log.Error(err))
		}
	}
	slog.Info("Run finished",
		log.RunID(in.RunID),
		log.Status(res.Status),
		slog.Int64("duration_ms", res.Duration))
	return res, nil
}

// ExecuteStep runs exactly one named step in test mode, reading earlier
// steps from the supplied sample outputs, and returns its output
func (e *Engine) ExecuteStep(
	ctx context.Context, in *api.ExecuteStepInput,
) (*api.StepOutput, error) {
	action, ok := in.FlowVersion.FindAction(in.StepName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotInFlow, in.StepName)
	}
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	fc := api.NewFlowContext(runID, "")
	samples := maps.Clone(in.SampleData)
	delete(samples, in.StepName)
	for name, out := range samples {
		if out == nil {
			continue
		}
		out = out.SetStatus(api.StepSucceeded)
		err := e.steps.Save(ctx, runID, name, fc.CurrentPath, out)
		if err != nil {
			return nil, err
		}
		fc = fc.UpsertStep(name, out.Type, api.StepSucceeded)
	}

	c := &Constants{
		RunID:              runID,
		ProjectID:          in.ProjectID,
		ServerURL:          in.ServerURL,
		EngineToken:        in.EngineToken,
		CodeDirectory:      e.config.CodeDirectory,
		FlowVersion:        &in.FlowVersion,
		ExecutionType:      api.ExecutionBegin,
		ProgressUpdateType: api.ProgressNone,
		TestSingleStep:     true,
		StepNameToTest:     in.StepName,
	}
	fc, err := e.Execute(ctx, action, fc, c)
	if err != nil {
		return nil, err
	}
	ref, ok := fc.StepRefAt(in.StepName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotInFlow, in.StepName)
	}
	return e.expandStep(ctx, ref)
}

// RunResult reports the state of a run, with every step output loaded
func (e *Engine) RunResult(
	ctx context.Context, fc *api.FlowContext,
) (*api.RunResult, error) {
	steps, err := e.expandRefs(ctx, fc.Steps)
	if err != nil {
		return nil, err
	}
	v := fc.Verdict
	res := &api.RunResult{
		RunID:         fc.RunID,
		Status:        v.RunStatus(),
		Duration:      fc.Duration,
		StepsCount:    fc.StepsCount,
		Steps:         steps,
		Error:         v.FailedStep,
		Message:       v.Message,
		PauseMetadata: v.PauseMetadata,
		Response:      fc.Response,
		Tags:          fc.Tags,
	}
	if v.StopResponse != nil {
		res.Response = v.StopResponse
	}
	return res, nil
}

func (e *Engine) flowConstants(in *api.ExecuteFlowInput) *Constants {
	c := &Constants{
		RunID:              in.RunID,
		ProjectID:          in.ProjectID,
		ServerURL:          in.ServerURL,
		EngineToken:        in.EngineToken,
		CodeDirectory:      e.config.CodeDirectory,
		FlowVersion:        &in.FlowVersion,
		ExecutionType:      in.ExecutionType,
		ResumePayload:      in.ResumePayload,
		ProgressUpdateType: in.ProgressUpdateType,
	}
	if e.progress == nil || in.ProgressUpdateType == api.ProgressNone ||
		in.ProgressUpdateType == "" {
		return c
	}
	c.Progress = NewProgress(e.progress, e.config.ProgressDebounce,
		func(ctx context.Context, fc *api.FlowContext) (
			*api.ProgressUpdate, error,
		) {
			details, err := e.RunResult(ctx, fc)
			if err != nil {
				return nil, err
			}
			if fc.Verdict.IsRunning() {
				details.Status = api.RunRunning
			}
			return &api.ProgressUpdate{
				RunID:      fc.RunID,
				HandlerID:  e.id,
				RequestID:  in.HTTPRequestID,
				RunDetails: *details,
			}, nil
		},
	)
	return c
}
