package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/kode4food/argyll/worker/internal/engine/props"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

const authInput = "auth"

func (e *Engine) handlePiece(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	if fc.IsCompleted(action.Name) {
		return fc, nil
	}
	settings, err := action.PieceSettings()
	if err != nil {
		return nil, err
	}
	p, act, err := e.pieces.Action(
		settings.PieceName, settings.PieceVersion, settings.ActionName,
	)
	if err != nil {
		return nil, err
	}

	resume := c.ExecutionType == api.ExecutionResume &&
		fc.IsPaused(action.Name)
	if fc.PauseRequestID == "" {
		fc = fc.SetPauseRequestID(uuid.NewString())
	}
	return e.runWithRetry(ctx, action, c, settings.ErrorHandling,
		func(ctx context.Context) (*attempt, error) {
			return e.executePiece(ctx, &pieceCall{
				action:   action,
				settings: settings,
				piece:    p,
				act:      act,
				resume:   resume,
			}, fc, c)
		},
	)
}

type pieceCall struct {
	action   *api.FlowAction
	settings *api.PieceSettings
	piece    *piece.Piece
	act      *piece.Action
	resume   bool
}

func (e *Engine) executePiece(
	ctx context.Context, call *pieceCall, fc *api.FlowContext, c *Constants,
) (*attempt, error) {
	action := call.action
	start := e.now()
	resolved, censored, cause, err := e.resolve(ctx, call.settings.Input, fc)
	if err != nil {
		return nil, err
	}
	out := api.NewStepOutput(api.ActionPiece, censored)
	if cause != nil {
		return e.failStep(ctx, action, fc, out, start, cause)
	}

	values, _ := resolved.(map[string]any)
	input, auth, errs := e.processInputs(ctx, call.piece, call.act, values)
	if len(errs) != 0 {
		cause := piece.NonRetryable(errs.Err())
		return e.failStep(ctx, action, fc, out, start, cause)
	}

	actx := e.actionContext(ctx, fc, c, call.resume)
	actx.Auth = auth
	actx.Props = input

	res, err := call.act.Runner(c.TestSingleStep)(actx)
	if actx.Outcome.Err != nil {
		return nil, actx.Outcome.Err
	}
	if err != nil {
		return e.failStep(ctx, action, fc, out, start, err)
	}

	fc = fc.AddTags(actx.Tags.Values()...)
	oc := actx.Outcome
	if oc.Responded {
		fc = fc.SetResponse(oc.Response)
	}

	out = out.SetOutput(res).SetDuration(e.since(start))
	verdict := api.Running()
	switch {
	case oc.Stopped:
		out = out.SetStatus(api.StepSucceeded)
		verdict = api.Stopped(oc.StopResponse)
	case oc.Pause != nil:
		meta := pauseMetadata(oc.Pause, fc)
		out = out.SetStatus(api.StepPaused)
		verdict = api.Paused(meta)
		slog.Info("Run paused",
			log.RunID(fc.RunID),
			log.StepName(action.Name),
			slog.String("pause_type", string(meta.Type)))
	default:
		out = out.SetStatus(api.StepSucceeded)
	}

	next, err := e.saveStep(ctx, action, fc, out)
	if err != nil {
		return nil, err
	}
	return &attempt{fc: next.SetVerdict(verdict)}, nil
}

// processInputs casts the resolved input of an action against its props,
// handling the auth block separately when the piece declares one
func (e *Engine) processInputs(
	ctx context.Context, p *piece.Piece, act *piece.Action,
	values map[string]any,
) (map[string]any, any, props.Errors) {
	values = maps.Clone(values)
	rawAuth := values[authInput]
	delete(values, authInput)

	input, errs := e.processor.Process(ctx, act.Props, values)
	if p.Auth == nil {
		return input, rawAuth, errs
	}
	if rawAuth == nil && !act.RequireAuth {
		return input, nil, errs
	}
	auth, authErrs := e.processor.ProcessAuth(ctx, p.Auth, rawAuth)
	maps.Copy(errs, authErrs)
	return input, auth, errs
}

func (e *Engine) actionContext(
	ctx context.Context, fc *api.FlowContext, c *Constants, resume bool,
) *piece.ActionContext {
	res := &piece.ActionContext{
		Context:        ctx,
		RunID:          fc.RunID,
		ServerURL:      c.ServerURL,
		PauseRequestID: fc.PauseRequestID,
		ResumeURL:      resumeURL(c.ServerURL, fc),
		ExecutionType:  api.ExecutionBegin,
		Store:          e.keyValues.ForRun(fc.RunID),
		Connections:    e.connections,
		Files:          e.files,
		Tags:           &piece.Tags{},
		Outcome: &piece.Outcome{
			PauseLimit: e.now().Add(e.config.MaxPauseDuration),
		},
	}
	if resume {
		res.ExecutionType = api.ExecutionResume
		res.ResumePayload = c.ResumePayload
	}
	return res
}

// pauseMetadata completes the metadata recorded by the pause hook. Webhook
// pauses are correlated through the run's pause request id
func pauseMetadata(
	meta *api.PauseMetadata, fc *api.FlowContext,
) *api.PauseMetadata {
	res := *meta
	if res.Type == api.PauseWebhook && res.RequestID == "" {
		res.RequestID = fc.PauseRequestID
	}
	return &res
}

func resumeURL(serverURL string, fc *api.FlowContext) string {
	if serverURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/v1/flow-runs/%s/requests/%s",
		strings.TrimRight(serverURL, "/"), fc.RunID, fc.PauseRequestID)
}
