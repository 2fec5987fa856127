package engine

import (
	"context"
	"time"

	"github.com/kode4food/argyll/worker/internal/engine/condition"
	"github.com/kode4food/argyll/worker/pkg/api"
)

// handleBranch records the evaluation of the branch conditions and then
// runs the matching subtree. The decision is recorded first so it can be
// inspected even when the subtree fails
func (e *Engine) handleBranch(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	start := e.now()
	resolved, censored, cause, err := e.resolve(ctx, action.Settings, fc)
	if err != nil {
		return nil, err
	}
	out := api.NewStepOutput(api.ActionBranch, censored)
	if cause != nil {
		return e.failDecision(ctx, action, fc, out, start, cause)
	}

	var settings api.BranchSettings
	if err := api.DecodeSettings(resolved, &settings); err != nil {
		return e.failDecision(ctx, action, fc, out, start, err)
	}
	result := condition.Evaluate(settings.Conditions)

	out = out.SetOutput(&api.BranchOutput{ConditionResult: result}).
		SetStatus(api.StepSucceeded).
		SetDuration(e.since(start))
	fc, err = e.saveStep(ctx, action, fc, out)
	if err != nil || c.TestSingleStep {
		return fc, err
	}

	next := action.OnFailureAction
	if result {
		next = action.OnSuccessAction
	}
	if next == nil {
		return fc, nil
	}
	return e.Execute(ctx, next, fc, c)
}

// handleRouter evaluates every branch, records the results, and runs the
// selected children. In all-match mode the children run one after another
// and the first verdict that is no longer running ends the pass, so at
// most one of them can pause the run
func (e *Engine) handleRouter(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	c *Constants,
) (*api.FlowContext, error) {
	start := e.now()
	resolved, censored, cause, err := e.resolve(ctx, action.Settings, fc)
	if err != nil {
		return nil, err
	}
	out := api.NewStepOutput(api.ActionRouter, censored)
	if cause != nil {
		return e.failDecision(ctx, action, fc, out, start, cause)
	}

	var settings api.RouterSettings
	if err := api.DecodeSettings(resolved, &settings); err != nil {
		return e.failDecision(ctx, action, fc, out, start, err)
	}
	results := evaluateRouter(&settings)

	out = out.SetOutput(&api.RouterOutput{Branches: results}).
		SetStatus(api.StepSucceeded).
		SetDuration(e.since(start))
	fc, err = e.saveStep(ctx, action, fc, out)
	if err != nil || c.TestSingleStep {
		return fc, err
	}

	for i, r := range results {
		if !r.Evaluation {
			continue
		}
		if i < len(action.Children) && action.Children[i] != nil {
			fc, err = e.Execute(ctx, action.Children[i], fc, c)
			if err != nil {
				return nil, err
			}
		}
		if settings.ExecutionType != api.RouterExecuteAllMatch ||
			!fc.Verdict.IsRunning() {
			break
		}
	}
	return fc, nil
}

// evaluateRouter decides every branch. In first-match mode the fallback is
// true when no branch before it matched; in all-match mode it is true only
// when no conditional branch matched at all
func evaluateRouter(s *api.RouterSettings) []api.RouterBranchResult {
	res := make([]api.RouterBranchResult, len(s.Branches))
	matched := false
	for i := range s.Branches {
		b := &s.Branches[i]
		res[i] = api.RouterBranchResult{
			BranchName:  b.BranchName,
			BranchIndex: i,
		}
		if b.IsFallback() {
			continue
		}
		res[i].Evaluation = condition.Evaluate(b.Conditions)
		matched = matched || res[i].Evaluation
	}

	firstMatch := s.ExecutionType != api.RouterExecuteAllMatch
	seen := false
	for i := range res {
		b := &s.Branches[i]
		switch {
		case b.IsFallback() && firstMatch:
			res[i].Evaluation = !seen
		case b.IsFallback():
			res[i].Evaluation = !matched
		}
		seen = seen || res[i].Evaluation
	}
	return res
}

func (e *Engine) failDecision(
	ctx context.Context, action *api.FlowAction, fc *api.FlowContext,
	out *api.StepOutput, start time.Time, cause error,
) (*api.FlowContext, error) {
	res, err := e.failStep(ctx, action, fc, out, start, cause)
	if err != nil {
		return nil, err
	}
	return res.fc, nil
}
