package engine

import (
	"context"
	"errors"

	"github.com/kode4food/argyll/worker/internal/engine/sandbox"
	"github.com/kode4food/argyll/worker/pkg/api"
)

// CodeTimeoutMessage is recorded when a code unit runs past its timeout
const CodeTimeoutMessage = "Code execution timed out"

var errCodeTimeout = errors.New(CodeTimeoutMessage)

func (e *Engine) handleCode(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	if fc.IsCompleted(action.Name) {
		return fc, nil
	}
	settings, err := action.CodeSettings()
	if err != nil {
		return nil, err
	}
	return e.runWithRetry(ctx, action, c, settings.ErrorHandling,
		func(ctx context.Context) (*attempt, error) {
			return e.executeCode(ctx, action, settings, fc, c)
		},
	)
}

func (e *Engine) executeCode(
	ctx context.Context, action *api.FlowAction, settings *api.CodeSettings,
	fc *api.FlowContext, c *Constants,
) (*attempt, error) {
	start := e.now()
	resolved, censored, cause, err := e.resolve(ctx, settings.Input, fc)
	if err != nil {
		return nil, err
	}
	out := api.NewStepOutput(api.ActionCode, censored)
	if cause != nil {
		return e.failStep(ctx, action, fc, out, start, cause)
	}

	unit, err := e.loader.Load(ctx, c.CodeDirectory, action.Name)
	if err != nil {
		return nil, err
	}
	inputs, _ := resolved.(map[string]any)
	if inputs == nil {
		inputs = map[string]any{}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.config.CodeTimeout)
	res, err := e.sandbox.Run(runCtx, unit, inputs)
	cancel()

	switch {
	case err == nil:
		out = out.SetOutput(res).
			SetStatus(api.StepSucceeded).
			SetDuration(e.since(start))
		next, err := e.saveStep(ctx, action, fc, out)
		if err != nil {
			return nil, err
		}
		return &attempt{fc: next}, nil

	case ctx.Err() != nil:
		return nil, ctx.Err()

	case errors.Is(err, context.DeadlineExceeded):
		res, err := e.failStep(ctx, action, fc, out, start, errCodeTimeout)
		if err != nil {
			return nil, err
		}
		failed := failedStep(action, CodeTimeoutMessage)
		res.fc = res.fc.SetVerdict(api.TimedOut(failed))
		return res, nil

	case errors.Is(err, sandbox.ErrCodeUnitNotFound),
		errors.Is(err, sandbox.ErrUnknownLanguage):
		return nil, err

	default:
		return e.failStep(ctx, action, fc, out, start, err)
	}
}
