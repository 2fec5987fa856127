package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kode4food/argyll/worker/internal/engine/props"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/log"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

// ExecuteProperty computes the options of a dropdown property. Failures of
// the options function are reported as a disabled dropdown
func (e *Engine) ExecuteProperty(
	ctx context.Context, in *api.ExecutePropertyInput,
) (*api.PropertyOptions, error) {
	p, err := e.pieces.Get(in.PieceName, in.PieceVersion)
	if err != nil {
		return nil, err
	}
	prop, err := e.findProperty(p, in)
	if err != nil {
		return nil, err
	}
	if prop.Options == nil {
		if prop.StaticOptions != nil {
			return &api.PropertyOptions{Options: prop.StaticOptions}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrPropertyNoOptions, in.PropertyName)
	}

	input, auth, err := e.resolveOperationInput(ctx, p, in.Input)
	if err != nil {
		return disabledOptions(err), nil
	}
	opts, err := prop.Options(&piece.PropertyContext{
		Context:     ctx,
		Auth:        auth,
		Input:       input,
		SearchValue: in.SearchValue,
	})
	if err != nil {
		return disabledOptions(err), nil
	}
	if opts == nil {
		opts = []piece.Option{}
	}
	return &api.PropertyOptions{Options: opts}, nil
}

// ExecuteTriggerHook invokes one lifecycle hook of a trigger. A trigger
// without the hook succeeds with no output
func (e *Engine) ExecuteTriggerHook(
	ctx context.Context, in *api.ExecuteTriggerInput,
) (any, error) {
	p, trig, err := e.pieces.Trigger(
		in.PieceName, in.PieceVersion, in.TriggerName,
	)
	if err != nil {
		return nil, err
	}
	hook := trig.Hook(in.HookType)
	if hook == nil {
		return nil, nil
	}

	input, auth, err := e.resolveOperationInput(ctx, p, in.Input)
	if err != nil {
		return nil, err
	}
	input, errs := e.processor.Process(ctx, trig.Props, input)
	if len(errs) != 0 {
		return nil, errs.Err()
	}

	slog.Debug("Running trigger hook",
		slog.String("piece", p.Name),
		slog.String("trigger", trig.Name),
		slog.String("hook", string(in.HookType)))

	return hook(&piece.TriggerContext{
		Context:    ctx,
		Auth:       auth,
		Props:      input,
		Store:      e.keyValues.ForRun(triggerScope(p, trig)),
		WebhookURL: in.WebhookURL,
		Payload:    in.TriggerPayload,
	})
}

// ExecuteTool runs a piece action outside of any flow. Failures of the
// action itself are reported in the result rather than as errors
func (e *Engine) ExecuteTool(
	ctx context.Context, in *api.ExecuteToolInput,
) (*api.ToolResult, error) {
	p, act, err := e.pieces.Action(
		in.PieceName, in.PieceVersion, in.ActionName,
	)
	if err != nil {
		return nil, err
	}

	resolved, _, err := e.resolver.Resolve(ctx, anyMap(in.Input), e.toolScope())
	if err != nil {
		return &api.ToolResult{Message: err.Error()}, nil
	}
	values, _ := resolved.(map[string]any)
	input, auth, errs := e.processInputs(ctx, p, act, values)
	if len(errs) != 0 {
		return &api.ToolResult{Message: errs.Err().Error()}, nil
	}

	fc := api.NewFlowContext(uuid.NewString(), "")
	actx := e.actionContext(ctx, fc, &Constants{}, false)
	actx.Auth = auth
	actx.Props = input

	out, err := act.Runner(false)(actx)
	if err != nil {
		slog.Info("Tool failed",
			slog.String("piece", p.Name),
			slog.String("action", act.Name),
			log.Error(err))
		return &api.ToolResult{Message: err.Error()}, nil
	}
	return &api.ToolResult{Success: true, Output: out}, nil
}

// ExecuteValidateAuth checks an auth value against the piece's validator
func (e *Engine) ExecuteValidateAuth(
	ctx context.Context, in *api.ExecuteValidateAuthInput,
) (*api.ValidateAuthResult, error) {
	p, err := e.pieces.Get(in.PieceName, in.PieceVersion)
	if err != nil {
		return nil, err
	}
	if p.Auth == nil {
		return &api.ValidateAuthResult{Valid: true}, nil
	}
	auth, errs := e.processor.ProcessAuth(ctx, p.Auth, in.Auth)
	if len(errs) != 0 {
		return &api.ValidateAuthResult{Error: errs.Err().Error()}, nil
	}
	if p.Auth.Validate == nil {
		return &api.ValidateAuthResult{Valid: true}, nil
	}
	err = p.Auth.Validate(&piece.AuthContext{Context: ctx, Auth: auth})
	if err != nil {
		return &api.ValidateAuthResult{Error: err.Error()}, nil
	}
	return &api.ValidateAuthResult{Valid: true}, nil
}

// ExtractPieceMetadata returns the serializable definition of a piece
func (e *Engine) ExtractPieceMetadata(
	_ context.Context, in *api.ExtractMetadataInput,
) (*piece.Piece, error) {
	return e.pieces.Get(in.PieceName, in.PieceVersion)
}

func (e *Engine) findProperty(
	p *piece.Piece, in *api.ExecutePropertyInput,
) (*piece.Property, error) {
	var defs piece.Properties
	switch {
	case in.ActionName != "":
		act, ok := p.Actions[in.ActionName]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s",
				piece.ErrActionNotFound, p.Name, in.ActionName)
		}
		defs = act.Props
	case in.TriggerName != "":
		trig, ok := p.Triggers[in.TriggerName]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s",
				piece.ErrTriggerNotFound, p.Name, in.TriggerName)
		}
		defs = trig.Props
	}
	if prop, ok := defs[in.PropertyName]; ok {
		return prop, nil
	}
	return nil, fmt.Errorf("%w: %s", piece.ErrPropNotFound, in.PropertyName)
}

// resolveOperationInput resolves connection references in an operation's
// input and splits off the processed auth value
func (e *Engine) resolveOperationInput(
	ctx context.Context, p *piece.Piece, in map[string]any,
) (map[string]any, any, error) {
	resolved, _, err := e.resolver.Resolve(ctx, anyMap(in), e.toolScope())
	if err != nil {
		return nil, nil, err
	}
	values, _ := resolved.(map[string]any)
	if values == nil {
		values = map[string]any{}
	}
	auth := values[authInput]
	delete(values, authInput)
	if p.Auth == nil || auth == nil {
		return values, auth, nil
	}
	auth, errs := e.processor.ProcessAuth(ctx, p.Auth, auth)
	if len(errs) != 0 {
		return nil, nil, errs.Err()
	}
	return values, auth, nil
}

func (e *Engine) toolScope() *props.Scope {
	return &props.Scope{Connections: e.connections}
}

func disabledOptions(err error) *api.PropertyOptions {
	return &api.PropertyOptions{
		Options:  []piece.Option{},
		Disabled: true,
		Message:  err.Error(),
	}
}

func triggerScope(p *piece.Piece, t *piece.Trigger) string {
	return "trigger:" + p.Name + ":" + t.Name
}

func anyMap(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
