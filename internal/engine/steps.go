package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kode4food/argyll/worker/internal/engine/props"
	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

type (
	// attempt is the outcome of one handler execution. cause is the user
	// failure behind a FAILED verdict, kept for the retry policy
	attempt struct {
		fc    *api.FlowContext
		cause error
	}

	// stepScope reads the steps visible from one point of a run. Values
	// are fetched from the step store only when a token names them
	stepScope struct {
		engine  *Engine
		visible api.StepRefs
	}
)

const (
	loopIndexKey      = "index"
	loopItemKey       = "item"
	loopIterationsKey = "iterations"
)

var _ props.StepScope = (*stepScope)(nil)

func (e *Engine) scope(fc *api.FlowContext) *props.Scope {
	return &props.Scope{
		Steps: &stepScope{
			engine:  e,
			visible: fc.VisibleSteps(),
		},
		Connections: e.connections,
	}
}

// resolve evaluates the templates in value against the steps visible
// from fc. A missing connection is a user failure, reported through cause
func (e *Engine) resolve(
	ctx context.Context, value any, fc *api.FlowContext,
) (resolved, censored any, cause error, err error) {
	resolved, censored, err = e.resolver.Resolve(ctx, value, e.scope(fc))
	if errors.Is(err, piece.ErrConnectionNotFound) {
		return nil, nil, piece.NonRetryable(err), nil
	}
	return resolved, censored, nil, err
}

// saveStep persists out for action at the current path and records its
// reference. A step is counted the first time it is recorded
func (e *Engine) saveStep(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	out *api.StepOutput,
) (*api.FlowContext, error) {
	err := e.steps.Save(ctx, fc.RunID, action.Name, fc.CurrentPath, out)
	if err != nil {
		return nil, err
	}
	_, existed := fc.StepRefAt(action.Name)
	res := fc.UpsertStep(action.Name, action.Type, out.Status)
	if !existed {
		res = res.IncreaseStepsCount()
	}
	return res, nil
}

// failStep records out as FAILED with the message of cause and returns a
// FAILED verdict naming the step
func (e *Engine) failStep(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	out *api.StepOutput, start time.Time, cause error,
) (*attempt, error) {
	msg := cause.Error()
	out = out.SetStatus(api.StepFailed).
		SetErrorMessage(msg).
		SetDuration(e.since(start))
	next, err := e.saveStep(ctx, action, fc, out)
	if err != nil {
		return nil, err
	}
	return &attempt{
		fc:    next.SetVerdict(api.Failed(failedStep(action, msg))),
		cause: cause,
	}, nil
}

func failedStep(action *api.FlowAction, msg string) *api.FailedStep {
	return &api.FailedStep{
		Name:        action.Name,
		DisplayName: action.Label(),
		Message:     msg,
	}
}

func (e *Engine) since(start time.Time) int64 {
	return e.now().Sub(start).Milliseconds()
}

// Names returns the visible step names
func (s *stepScope) Names() []string {
	return s.visible.Names()
}

// Value loads the output of the named step. Loop steps read as their
// summary, with iterations only materialized when asked for
func (s *stepScope) Value(
	ctx context.Context, name string, iterations bool,
) (any, error) {
	ref, ok := s.visible[name]
	if !ok {
		return nil, nil
	}
	out, err := s.engine.steps.Get(ctx, ref.RunID, ref.StepName, ref.Path)
	if err != nil {
		return nil, err
	}
	if ref.Type != api.ActionLoop {
		return out.Output, nil
	}

	idx, item := out.LoopSummary()
	res := map[string]any{
		loopIndexKey:      idx,
		loopItemKey:       item,
		loopIterationsKey: []any{},
	}
	if !iterations {
		return res, nil
	}
	its, err := s.engine.expandIterations(ctx, ref)
	if err != nil {
		return nil, err
	}
	res[loopIterationsKey], err = toGeneric(its)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// expandRefs loads every step output at one level of a reference tree,
// materializing loop iterations recursively
func (e *Engine) expandRefs(
	ctx context.Context, refs api.StepRefs,
) (map[string]*api.StepOutput, error) {
	res := make(map[string]*api.StepOutput, len(refs))
	for name, ref := range refs {
		out, err := e.expandStep(ctx, ref)
		if err != nil {
			return nil, err
		}
		res[name] = out
	}
	return res, nil
}

func (e *Engine) expandStep(
	ctx context.Context, ref *api.StepRef,
) (*api.StepOutput, error) {
	out, err := e.steps.Get(ctx, ref.RunID, ref.StepName, ref.Path)
	if err != nil {
		return nil, err
	}
	if ref.Type != api.ActionLoop {
		return out, nil
	}
	its, err := e.expandIterations(ctx, ref)
	if err != nil {
		return nil, err
	}
	idx, item := out.LoopSummary()
	return out.SetOutput(&api.LoopOutput{
		Index:      idx,
		Item:       item,
		Iterations: its,
	}), nil
}

func (e *Engine) expandIterations(
	ctx context.Context, ref *api.StepRef,
) ([]map[string]*api.StepOutput, error) {
	res := make([]map[string]*api.StepOutput, len(ref.Iterations))
	for i, bucket := range ref.Iterations {
		steps, err := e.expandRefs(ctx, bucket)
		if err != nil {
			return nil, err
		}
		res[i] = steps
	}
	return res, nil
}

// toGeneric converts typed values into the maps and slices templates see
func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var res any
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, err
	}
	return res, nil
}
