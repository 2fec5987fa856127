package engine

import (
	"context"
	"reflect"

	"github.com/kode4food/argyll/worker/pkg/api"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

// handleLoop runs the loop body once per item. Each iteration pushes a
// path frame so the body records its steps inside that iteration's bucket,
// and the loop summary is saved before the body runs so the body can read
// the current index and item
func (e *Engine) handleLoop(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	start := e.now()
	resolved, censored, cause, err := e.resolve(ctx, action.Settings, fc)
	if err != nil {
		return nil, err
	}
	out := api.NewStepOutput(api.ActionLoop, censored)
	if cause != nil {
		return e.failDecision(ctx, action, fc, out, start, cause)
	}

	settings, _ := resolved.(map[string]any)
	items, ok := asItems(settings["items"])
	if !ok {
		cause := piece.NonRetryable(ErrItemsNotList)
		return e.failDecision(ctx, action, fc, out, start, cause)
	}

	out = out.SetOutput(&api.LoopOutput{})
	parent := fc.CurrentPath
	for i, item := range items {
		out = out.SetOutput(&api.LoopOutput{Index: i + 1, Item: item})
		fc, err = e.saveStep(ctx, action, fc, out)
		if err != nil {
			return nil, err
		}
		fc = fc.EnsureIteration(action.Name, i)
		if c.TestSingleStep {
			break
		}
		if action.FirstLoopAction == nil {
			continue
		}

		fc, err = e.Execute(ctx, action.FirstLoopAction,
			fc.SetCurrentPath(parent.LoopIteration(action.Name, i)), c)
		if err != nil {
			return nil, err
		}
		fc = fc.SetCurrentPath(parent)
		if !fc.Verdict.IsRunning() {
			break
		}
	}

	out = out.SetStatus(loopStatus(fc.Verdict)).SetDuration(e.since(start))
	return e.saveStep(ctx, action, fc, out)
}

func loopStatus(v api.Verdict) api.StepStatus {
	switch v.Status {
	case api.VerdictRunning, api.VerdictSucceeded:
		return api.StepSucceeded
	case api.VerdictPaused:
		return api.StepPaused
	default:
		return api.StepFailed
	}
}

// asItems accepts any slice or array. Strings and everything else are not
// iterable items
func asItems(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	res := make([]any, rv.Len())
	for i := range res {
		res[i] = rv.Index(i).Interface()
	}
	return res, true
}
